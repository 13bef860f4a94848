// Package locks serializes settlement writes per (store, client) account.
package locks

import "sync"

// Keyed hands out one mutex per key. Entries are never evicted; the key
// space is bounded by active (store, client) pairs.
type Keyed struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{mutexes: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.mutexes[key]
	if !ok {
		m = &sync.Mutex{}
		k.mutexes[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
