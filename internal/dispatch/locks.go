package dispatch

import "sync"

// lockTable is the per-job execution lock registry. A lock is held only
// for the duration of one render attempt; acquisition fails fast instead
// of blocking, so a job can never execute twice concurrently.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

func (t *lockTable) tryAcquire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.held[id]; ok {
		return false
	}
	t.held[id] = struct{}{}
	return true
}

func (t *lockTable) release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}
