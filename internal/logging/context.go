package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that is not cancelled with parent but keeps
// its values. Shutdown paths use it so cleanup still runs after the run
// context has been cancelled.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from parent and applies its own deadline.
//
//	stopCtx, cancel := logging.DetachContextWithTimeout(ctx, 10*time.Second)
//	defer cancel()
//	err := rt.Stop(stopCtx)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
