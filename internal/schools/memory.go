package schools

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	states  map[string]int64
	schools map[string]School

	// FailCodes makes UpsertSchool fail for the listed codes.
	FailCodes map[string]error
}

// NewMemoryStore returns a store that knows the given state names.
func NewMemoryStore(states ...string) *MemoryStore {
	m := &MemoryStore{
		states:  make(map[string]int64, len(states)),
		schools: make(map[string]School),
	}
	for i, s := range states {
		m.states[strings.ToLower(s)] = int64(i + 1)
	}
	return m
}

func (m *MemoryStore) StateIDs(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) UpsertSchool(ctx context.Context, s School) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailCodes[s.Code]; err != nil {
		return false, err
	}
	_, exists := m.schools[s.Code]
	m.schools[s.Code] = s
	return !exists, nil
}

// School returns the stored school with code.
func (m *MemoryStore) School(code string) (School, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schools[code]
	return s, ok
}

// Len returns the number of stored schools.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schools)
}
