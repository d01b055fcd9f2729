package cart

import (
	"sync"
	"time"
)

// Guard serializes mutations per identity key. Acquire rejects instead of
// queueing: a second request for a key with an operation in flight is a
// deliberate no-op, which is what absorbs double-clicks on the same control.
//
// Release is deferred by the settling delay so that a burst of repeated
// clicks arriving just as a request completes is still swallowed.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	settle   time.Duration
}

func NewGuard(settle time.Duration) *Guard {
	return &Guard{
		inflight: make(map[string]struct{}),
		settle:   settle,
	}
}

// Acquire reserves the key. Returns false when an operation for the key is
// already in flight or still settling.
func (g *Guard) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// Release frees the key after the settling delay.
func (g *Guard) Release(key string) {
	if g.settle == 0 {
		g.release(key)
		return
	}
	time.AfterFunc(g.settle, func() { g.release(key) })
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}
