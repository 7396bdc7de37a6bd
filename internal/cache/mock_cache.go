package cache

import (
	"context"
	"errors"
	"sync"
)

// MockTagCache keeps the names in memory and counts calls. It follows the
// same generation rule as RedisTagCache.
type MockTagCache struct {
	mu          sync.Mutex
	names       []string
	cached      bool
	gen         int64
	Gets        int
	Sets        int
	StaleSets   int
	Invalidates int
	ShouldFail  bool // flag to simulate a broken cache
}

func NewMockTagCache() *MockTagCache {
	return &MockTagCache{}
}

func (m *MockTagCache) Get(ctx context.Context) ([]string, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.ShouldFail {
		return nil, 0, false, errors.New("mock cache get failed")
	}
	if !m.cached {
		return nil, m.gen, false, nil
	}
	return append([]string(nil), m.names...), m.gen, true, nil
}

func (m *MockTagCache) Set(ctx context.Context, names []string, gen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.ShouldFail {
		return errors.New("mock cache set failed")
	}
	if gen != m.gen {
		m.StaleSets++
		return ErrStale
	}
	m.names = append([]string(nil), names...)
	m.cached = true
	return nil
}

func (m *MockTagCache) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidates++
	if m.ShouldFail {
		return errors.New("mock cache invalidate failed")
	}
	m.names = nil
	m.cached = false
	m.gen++
	return nil
}
