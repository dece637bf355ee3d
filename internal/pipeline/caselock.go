package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// caseLocks serializes the read-merge-persist section per case. Locks are
// created on first use and kept for the process lifetime; the population is
// bounded by the number of active cases.
type caseLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// acquire locks the mutex for caseID and returns its unlock func.
func (c *caseLocks) acquire(caseID uuid.UUID) func() {
	c.mu.Lock()
	l, ok := c.locks[caseID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[caseID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
