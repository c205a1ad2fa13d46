package broadcast

import (
	"context"
	"sync"
)

// Published is one message captured by MockBroadcaster.
type Published struct {
	Channel string
	Payload any
}

// MockBroadcaster records every publish in order. Err, when set, is returned
// after the message has been recorded.
type MockBroadcaster struct {
	mu       sync.Mutex
	messages []Published
	Err      error
}

func (m *MockBroadcaster) Publish(_ context.Context, channel string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Published{Channel: channel, Payload: payload})
	return m.Err
}

// Messages returns a copy of everything published so far.
func (m *MockBroadcaster) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.messages))
	copy(out, m.messages)
	return out
}

// Last returns the most recent message, if any.
func (m *MockBroadcaster) Last() (Published, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return Published{}, false
	}
	return m.messages[len(m.messages)-1], true
}

func (m *MockBroadcaster) Reset() {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()
}
