package service

import "sync"

// itemLocks hands out one mutex per item so acceptance processing for an
// item is serialized while unrelated items proceed concurrently. Mutexes are
// retained for the life of the process; the map grows with the number of
// items that ever saw an accept, which is bounded by catalog size.
type itemLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *itemLocks) get(itemID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[itemID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[itemID] = m
	}
	return m
}
