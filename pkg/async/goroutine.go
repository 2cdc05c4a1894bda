package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
)

// SafeGo runs fn in a goroutine with panic recovery and error logging through
// the context logger. A positive timeout bounds fn; zero or negative runs it
// until the parent context is cancelled.
//
// The returned channel is closed once fn has returned or panicked.
//
// Example:
//
//	async.SafeGo(ctx, 0, "permission invalidation listener", resolver.Listen)
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		} else {
			ctx, cancel = context.WithCancel(parentCtx)
		}
		defer cancel()

		logger := observability.GetLogger(parentCtx).WithField("task", taskName)
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("background task failed")
		}
	}()
	return done
}

// Every runs fn on a fixed interval until ctx is cancelled. Each tick goes
// through the same panic recovery as SafeGo.
func Every(ctx context.Context, interval time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	return SafeGo(ctx, 0, taskName, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				<-SafeGo(ctx, interval, taskName, fn)
			case <-ctx.Done():
				return nil
			}
		}
	})
}
