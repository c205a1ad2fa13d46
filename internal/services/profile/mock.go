package profile

import (
	"context"
	"sync"
)

// MockLookup serves profiles from memory and counts lookups per user.
type MockLookup struct {
	mu       sync.Mutex
	Profiles map[string]Profile
	Err      error
	calls    map[string]int
}

func (m *MockLookup) GetProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[userID]++

	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *MockLookup) Calls(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[userID]
}
