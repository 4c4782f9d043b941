// Package callgroup coalesces concurrent calls by key.
//
// While a call for a key is in flight, later callers for the same key join
// it and receive its result instead of running their own. Once it returns
// the key is forgotten, so the next call runs again.
package callgroup

import (
	"context"
	"sync"
)

// Group coalesces concurrent function calls by key. The zero value is ready
// to use.
type Group[K comparable] struct {
	mu    sync.Mutex
	calls map[K]*call
}

type call struct {
	done chan struct{}
	err  error
}

// Do runs fn unless a call for key is already in flight, in which case it
// waits for that call and returns its error. joined reports whether the
// result came from another caller. A joiner stops waiting when ctx is done;
// the running call is not affected.
func (g *Group[K]) Do(ctx context.Context, key K, fn func() error) (joined bool, err error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call)
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return true, c.err
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.err = fn()
	return false, c.err
}
