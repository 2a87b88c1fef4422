// Package safego runs background work with panic recovery, optionally tracked
// by a Group so shutdown can wait for it.
package safego

import (
	"context"
	"log/slog"
	"sync"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged.
func Go(fn func()) {
	go run(fn)
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine", "panic", r)
		}
	}()
	fn()
}

// Group tracks goroutines started through it. The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go launches fn like the package-level Go and counts it until it returns.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(fn)
	}()
}

// Wait blocks until every tracked goroutine has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
