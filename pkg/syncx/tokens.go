package syncx

import (
	"sync"
	"sync/atomic"
)

// TokenSet hands out at most one token per key.
//
// A token marks work in flight for that key: the holder must Release it when
// the work completes. Acquisition never blocks; a second TryAcquire for a
// held key fails immediately so callers can report a conflict instead of
// queueing behind the holder.
//
// # Thread Safety
//
// TokenSet is safe for concurrent use.
type TokenSet struct {
	mu       sync.Mutex
	held     map[string]struct{}
	inFlight atomic.Int64
}

// NewTokenSet creates an empty token set.
//
// Example:
//
//	tokens := syncx.NewTokenSet()
//	if !tokens.TryAcquire(policyID) {
//	    return conflict
//	}
//	defer tokens.Release(policyID)
func NewTokenSet() *TokenSet {
	return &TokenSet{held: make(map[string]struct{})}
}

// TryAcquire takes the token for key. It returns false if the token is
// already held.
//
// If this returns true, the caller MUST call Release(key) when done.
func (t *TokenSet) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[key]; ok {
		return false
	}
	t.held[key] = struct{}{}
	t.inFlight.Add(1)
	return true
}

// Release returns the token for key. Releasing a token that is not held is
// a no-op.
func (t *TokenSet) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[key]; !ok {
		return
	}
	delete(t.held, key)
	t.inFlight.Add(-1)
}

// Held reports whether the token for key is currently taken.
func (t *TokenSet) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[key]
	return ok
}

// InFlight returns the number of tokens currently held.
func (t *TokenSet) InFlight() int64 {
	return t.inFlight.Load()
}
