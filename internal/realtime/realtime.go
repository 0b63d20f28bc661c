// Package realtime subscribes to message inserts for one chat.
package realtime

import (
	"context"

	"github.com/zulandar/hoxy/internal/models"
)

// Source delivers newly inserted message rows for a chat.
type Source interface {
	// Subscribe starts delivering inserts for chatID. The returned channel is
	// closed when ctx is cancelled, the source is closed, or the connection
	// cannot be re-established.
	Subscribe(ctx context.Context, chatID string) (<-chan models.RawMessage, error)

	// Close tears down every subscription.
	Close() error
}
