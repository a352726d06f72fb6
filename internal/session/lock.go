package session

import "sync"

// Locker serializes work per participant. The wizard's read-modify-write of a
// session is not atomic, so every event for one participant must hold its lock.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns a ready Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*keyLock)}
}

// Lock blocks until participantID is free and returns the matching unlock.
func (l *Locker) Lock(participantID int64) (unlock func()) {
	l.mu.Lock()
	k, ok := l.locks[participantID]
	if !ok {
		k = &keyLock{}
		l.locks[participantID] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.locks, participantID)
		}
		l.mu.Unlock()
	}
}
