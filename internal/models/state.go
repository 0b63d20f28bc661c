package models

import "time"

// StateEntry is one client-persisted key/value pair: the last chat id, the
// saved booking form, the artist display name, and per-token flags.
type StateEntry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}
