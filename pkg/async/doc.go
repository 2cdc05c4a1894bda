// Package async provides safe goroutine helpers for background tasks.
//
// SafeGo recovers panics and logs returned errors through the context logger:
//
//	done := async.SafeGo(ctx, 0, "permission invalidation listener", resolver.Listen)
//	<-done // after ctx is cancelled
//
// Every runs a task on an interval:
//
//	async.Every(ctx, 30*time.Second, "replica health", cm.PruneReplicas)
package async
