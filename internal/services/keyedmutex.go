package services

import (
	"context"
	"sync"

	"github.com/joshua-takyi/gatherly/internal/models"
)

// KeyedMutex is an arena of lock handles indexed by key. Entries are created
// on first use and reclaimed once the last holder or waiter releases them, so
// the arena does not grow with the number of events ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*lockEntry),
	}
}

// Acquire takes the exclusion scope for key, blocking until it is free or ctx
// expires. On success the returned release function must be called on every
// exit path. Expiry of ctx surfaces as ErrBusy: nothing was mutated and the
// caller may retry.
func (km *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		km.locks[key] = entry
	}
	entry.refs++
	km.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			km.put(key, entry)
		}, nil
	case <-ctx.Done():
		km.put(key, entry)
		return nil, models.ErrBusy
	}
}

func (km *KeyedMutex) put(key string, entry *lockEntry) {
	km.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()
}

// Len reports how many keys currently hold live entries.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
