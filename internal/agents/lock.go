package agents

import "sync"

// keyedMutex hands out one non-blocking lock per agent id.
type keyedMutex struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// TryLock returns an unlock func, or false when id is already held.
func (k *keyedMutex) TryLock(id int64) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.held == nil {
		k.held = make(map[int64]struct{})
	}
	if _, busy := k.held[id]; busy {
		return nil, false
	}
	k.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, id)
			k.mu.Unlock()
		})
	}, true
}

// Held reports whether id is currently locked.
func (k *keyedMutex) Held(id int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.held[id]
	return ok
}
