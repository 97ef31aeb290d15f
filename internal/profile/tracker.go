package profile

import (
	"context"
	"sync"
)

// Tracker guards resolution results with a monotonic generation. Starting a
// new generation cancels the context of the previous one, and a result is
// only committed while its generation is still current.
type Tracker struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin starts a new generation derived from parent.
func (t *Tracker) Begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	t.cancel = cancel
	return ctx, t.gen
}

// Invalidate ends the current generation without starting work.
func (t *Tracker) Invalidate() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
	return t.gen
}

// Current returns the live generation.
func (t *Tracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Commit runs fn if gen is still current and reports whether it ran. fn runs
// with the tracker locked, so no generation can start midway.
func (t *Tracker) Commit(gen uint64, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	fn()
	return true
}
