package persistence

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/helios/pkg/governance"
)

// Memory keeps policies in a map. Contents are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	policies map[string]*governance.Policy
}

// NewMemory creates an empty memory backend.
func NewMemory() *Memory {
	return &Memory{policies: make(map[string]*governance.Policy)}
}

// Name implements Backend.
func (m *Memory) Name() string { return "memory" }

// LoadAll returns copies of every stored policy ordered by creation time.
func (m *Memory) LoadAll(context.Context) ([]*governance.Policy, error) {
	m.mu.RLock()
	out := make([]*governance.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Save stores a copy of p.
func (m *Memory) Save(_ context.Context, p *governance.Policy) error {
	if err := requireID(m.Name(), "save", p); err != nil {
		return err
	}
	m.mu.Lock()
	m.policies[p.ID] = p.Clone()
	m.mu.Unlock()
	return nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.policies, id)
	m.mu.Unlock()
	return nil
}

// Ping implements Backend.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Backend.
func (m *Memory) Close() error { return nil }

// Len returns the number of stored policies.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.policies)
}
