package assistant

import "sync"

// userLocks serializes turn handling per user so concurrent requests for
// the same user never interleave their read-budget-persist-reconcile
// cycles. Different users proceed in parallel.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
