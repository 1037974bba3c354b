package httpapi

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/queue"
)

type tracked struct {
	handle  *queue.Handle
	owner   string
	created time.Time
}

// registry remembers submitted jobs so their owners can poll or cancel
// them. Finished jobs are dropped ttl after submission.
type registry struct {
	mu        sync.Mutex
	jobs      map[string]*tracked
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newRegistry(ttl time.Duration) *registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &registry{jobs: make(map[string]*tracked), ttl: ttl, now: time.Now}
}

func (r *registry) add(h *queue.Handle, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > r.ttl/2 {
		r.sweepLocked(now)
		r.lastSweep = now
	}
	r.jobs[h.ID()] = &tracked{handle: h, owner: owner, created: now}
}

// get returns the handle only to its owner.
func (r *registry) get(id, owner string) (*queue.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.jobs[id]
	if !ok || t.owner != owner {
		return nil, false
	}
	return t.handle, true
}

// ownedBy lists ids of owner's jobs that are not finished.
func (r *registry) ownedBy(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, t := range r.jobs {
		if t.owner != owner {
			continue
		}
		select {
		case <-t.handle.Done():
		default:
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *registry) sweepLocked(now time.Time) {
	for id, t := range r.jobs {
		if now.Sub(t.created) < r.ttl {
			continue
		}
		select {
		case <-t.handle.Done():
			delete(r.jobs, id)
		default:
		}
	}
}
