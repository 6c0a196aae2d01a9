package ledger

import "sync"

// clientLocks hands out one mutex per client so mutations of the same
// client's money state never overlap. Different clients proceed in parallel.
// An entry lives only while some caller holds or waits for it.
type clientLocks struct {
	mu    sync.Mutex
	locks map[ClientNumber]*clientLock
}

type clientLock struct {
	mu   sync.Mutex
	refs int
}

func newClientLocks() *clientLocks {
	return &clientLocks{locks: make(map[ClientNumber]*clientLock)}
}

// lock acquires the client's mutex and returns its release function.
func (l *clientLocks) lock(number ClientNumber) func() {
	l.mu.Lock()
	cl, ok := l.locks[number]
	if !ok {
		cl = &clientLock{}
		l.locks[number] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, number)
		}
		l.mu.Unlock()
	}
}
