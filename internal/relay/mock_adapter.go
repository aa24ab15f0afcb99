package relay

import (
	"context"
	"errors"
	"sync"
)

// MockAdapter is an in-memory Adapter for tests. It keeps every message it
// is asked to post and can be told to fail.
type MockAdapter struct {
	mu       sync.Mutex
	state    mockState
	messages []OutboundMessage
	failWith error
}

type mockState int

const (
	mockIdle mockState = iota
	mockConnected
	mockClosed
)

// NewMockAdapter creates a MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

func (m *MockAdapter) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == mockClosed {
		return errors.New("mock adapter: already closed")
	}
	m.state = mockConnected
	return nil
}

func (m *MockAdapter) Send(_ context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state != mockConnected:
		return errors.New("mock adapter: not connected")
	case m.failWith != nil:
		return m.failWith
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = mockClosed
	return nil
}

// SetSendError makes later Send calls fail with err. nil restores success.
func (m *MockAdapter) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// LastSent returns the most recent message, or false if none was posted.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return OutboundMessage{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// SentCount returns the number of messages posted.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Kinds returns the notification kind of every posted card, in order.
func (m *MockAdapter) Kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []string
	for _, msg := range m.messages {
		for _, c := range msg.Cards {
			kinds = append(kinds, string(c.Kind))
		}
	}
	return kinds
}

// IsClosed reports whether Close was called.
func (m *MockAdapter) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == mockClosed
}
