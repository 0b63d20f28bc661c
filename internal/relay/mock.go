package relay

import (
	"context"
	"sync"
)

// MockNotifier implements Notifier for testing. It records every notice and
// fails with Err when set.
type MockNotifier struct {
	mu      sync.Mutex
	name    string
	notices []Notice
	err     error
}

// NewMockNotifier creates a MockNotifier reporting name.
func NewMockNotifier(name string) *MockNotifier {
	return &MockNotifier{name: name}
}

// Name implements Notifier.
func (m *MockNotifier) Name() string { return m.name }

// Notify records n.
func (m *MockNotifier) Notify(ctx context.Context, n Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.notices = append(m.notices, n)
	return nil
}

// SetError makes subsequent Notify calls fail with err.
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Notices returns a copy of the recorded notices.
func (m *MockNotifier) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notice, len(m.notices))
	copy(out, m.notices)
	return out
}
