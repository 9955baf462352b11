// Package gate provides a keyed mutual-exclusion lock: at most one holder
// per key, waiters served in arrival order, distinct keys independent.
package gate

import (
	"context"
	"sync"
)

type entry struct {
	// token has capacity one; holding the gate means having sent into it.
	token chan struct{}
	refs  int
}

// Gate serializes work per key, typically a chat client id.
type Gate struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty gate.
func New() *Gate {
	return &Gate{entries: make(map[string]*entry)}
}

// Acquire blocks until key is free or ctx is done. The returned release
// function frees the key; calling it more than once is a no-op.
func (g *Gate) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	e, ok := g.entries[key]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		g.entries[key] = e
	}
	e.refs++
	g.mu.Unlock()

	select {
	case e.token <- struct{}{}:
	case <-ctx.Done():
		g.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.token
			g.unref(key, e)
		})
	}, nil
}

// Do runs fn while holding key. The key is released on every exit path,
// including a panic in fn.
func (g *Gate) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Len returns the number of keys currently held or waited on.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *Gate) unref(key string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(g.entries, key)
	}
}
