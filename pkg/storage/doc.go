// Package storage holds backend configuration and the export archive.
//
// The archive is an ObjectStore: a local directory (FileSystemStore) or an
// S3 compatible bucket (S3Store). Audit exports write to it under a
// tenant-prefixed key and the download endpoint reads from it.
//
//	store, err := storage.NewObjectStore(ctx, cfg.Storage)
//	if store == nil {
//		// archiving disabled; only streamed CSV exports are served
//	}
//
// Database connections, schema migrations and the Redis client live in the
// postgres subpackage.
package storage
