package results

import (
	"context"
	"sync"
)

// MockStore keeps saved results in memory.
type MockStore struct {
	mu    sync.Mutex
	saved []Result
	Err   error
}

func (m *MockStore) SaveResult(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.saved = append(m.saved, r)
	return nil
}

func (m *MockStore) Saved() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, len(m.saved))
	copy(out, m.saved)
	return out
}
