package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/hoxy/internal/models"
)

// MockSource implements Source for testing. Rows passed to Emit are
// delivered to every subscriber of the chat.
type MockSource struct {
	mu     sync.Mutex
	subs   map[string][]chan models.RawMessage
	closed bool
	err    error
}

// NewMockSource creates a MockSource.
func NewMockSource() *MockSource {
	return &MockSource{subs: make(map[string][]chan models.RawMessage)}
}

// SetSubscribeError makes subsequent Subscribe calls fail with err.
func (m *MockSource) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Subscribe registers a subscriber for chatID.
func (m *MockSource) Subscribe(ctx context.Context, chatID string) (<-chan models.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("mock source: already closed")
	}
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan models.RawMessage, 100)
	m.subs[chatID] = append(m.subs[chatID], ch)
	go func() {
		<-ctx.Done()
		m.unsubscribe(chatID, ch)
	}()
	return ch, nil
}

func (m *MockSource) unsubscribe(chatID string, ch chan models.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[chatID]
	for i, c := range subs {
		if c == ch {
			m.subs[chatID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Emit delivers raw to the chat's subscribers and returns how many
// received it. Full subscriber buffers drop the row.
func (m *MockSource) Emit(chatID string, raw models.RawMessage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ch := range m.subs[chatID] {
		select {
		case ch <- raw:
			n++
		default:
		}
	}
	return n
}

// Subscribers returns the number of live subscriptions for chatID.
func (m *MockSource) Subscribers(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[chatID])
}

// Close closes every subscription channel.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for chatID, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, chatID)
	}
	return nil
}
