package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func (l *clientLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func TestClientLocks_ReleasedEntriesAreDropped(t *testing.T) {
	locks := newClientLocks()

	// GIVEN: Many distinct clients locked and released in turn
	for n := ClientNumber(1); n <= 1000; n++ {
		unlock := locks.lock(n)
		unlock()
	}

	// THEN: No entry outlives its holder
	assert.Zero(t, locks.size())
}

func TestClientLocks_SameClientIsExclusive(t *testing.T) {
	locks := newClientLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(7)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())
}

func TestClientLocks_WaiterKeepsEntryAlive(t *testing.T) {
	locks := newClientLocks()
	unlock := locks.lock(7)

	acquired := make(chan func())
	go func() { acquired <- locks.lock(7) }()

	// The waiter has registered once the entry carries two references.
	assert.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		return locks.locks[7] != nil && locks.locks[7].refs == 2
	}, time.Second, time.Millisecond)

	unlock()
	second := <-acquired
	assert.Equal(t, 1, locks.size())

	second()
	assert.Zero(t, locks.size())
}
