// Package state persists the small amount of client state hoxy carries
// between runs: the active chat, the submitted booking form, the artist
// display name, and which reservation links were verified.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/hoxy/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known keys.
const (
	KeyChatID      = "chatId"
	KeyBookingData = "bookingData"
	KeyArtistName  = "artistName"
	verifiedPrefix = "verified:"
)

// DefaultArtistName is shown when no artist name was saved.
const DefaultArtistName = "작가님"

// Store is a key/value view over the state_entries table.
type Store struct {
	db *gorm.DB
}

// New creates a Store backed by db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("state: db is required")
	}
	return &Store{db: db}, nil
}

// Get returns the value for key and whether it exists.
func (s *Store) Get(key string) (string, bool, error) {
	var entry models.StateEntry
	err := s.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state: get %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set upserts key.
func (s *Store) Set(key, value string) error {
	entry := models.StateEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("state: set %s: %w", key, result.Error)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.db.Where("key = ?", key).Delete(&models.StateEntry{}).Error; err != nil {
		return fmt.Errorf("state: delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value stored under key into v. It reports false when
// the key is missing.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v encoded as JSON under key.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// ChatID returns the last chat the customer was redirected into.
func (s *Store) ChatID() (string, bool, error) {
	return s.Get(KeyChatID)
}

// SetChatID records the active chat.
func (s *Store) SetChatID(chatID string) error {
	return s.Set(KeyChatID, chatID)
}

// ArtistName returns the saved artist display name, or DefaultArtistName.
func (s *Store) ArtistName() (string, error) {
	name, ok, err := s.Get(KeyArtistName)
	if err != nil {
		return DefaultArtistName, err
	}
	if !ok || name == "" {
		return DefaultArtistName, nil
	}
	return name, nil
}

// SetArtistName saves the artist display name.
func (s *Store) SetArtistName(name string) error {
	return s.Set(KeyArtistName, name)
}

// Verified reports whether the reservation link token was verified.
func (s *Store) Verified(token string) (bool, error) {
	v, ok, err := s.Get(verifiedPrefix + token)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// SetVerified marks a reservation link token as verified.
func (s *Store) SetVerified(token string) error {
	return s.Set(verifiedPrefix+token, "true")
}
