package session

import "sync"

// userLocks hands out one mutex per user and forgets it once nobody holds
// or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (u *userLocks) lock(user string) (unlock func()) {
	u.mu.Lock()
	l, ok := u.locks[user]
	if !ok {
		l = &userLock{}
		u.locks[user] = l
	}
	l.refs++
	u.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, user)
		}
		u.mu.Unlock()
	}
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
