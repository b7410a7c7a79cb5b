// File: internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext creates a context derived from ctx1 (the session context,
// which carries the CDP connection info) that is canceled when either ctx1 or
// ctx2 (the operational context carrying the caller's deadline) is canceled.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation. Cleanup against a live CDP target needs the
// target values even after the caller's context is gone.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is not canceled
// when ctx is.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
