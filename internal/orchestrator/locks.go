package orchestrator

import "sync"

// userLocks provides one mutex per (platform, user) conversation. The
// lock scope covers profile upsert through reply persistence so that
// concurrent webhook deliveries for the same user cannot interleave
// sequence assignment. Locks are never evicted; the per-user footprint is
// one mutex.
type userLocks struct {
	locks sync.Map
}

func (l *userLocks) lock(platform, userID string) *sync.Mutex {
	key := platform + "|" + userID
	mu, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
