// Package audit records and queries the append-only activity log.
//
// # Recording
//
// Business operations hand an Event to a Recorder. The tenant and user are
// taken from the request context (tenancy.Scope, auth.Identity) and the
// client address, user agent and request id from the RequestMeta captured
// by Middleware:
//
//	recorder.Record(ctx, audit.Event{
//		Action:     audit.ActionRoleCreated,
//		EntityType: "role",
//		EntityID:   &role.ID,
//		Details:    map[string]interface{}{"name": role.Name},
//	})
//
// BestEffortRecorder never fails the caller. A failed insert is logged and
// counted, and the business operation carries on.
//
// # Reading
//
// Query, Get, Statistics, FilterOptions and ExportCSV all take a
// tenancy.Scope and never return rows of another tenant. Entries of another
// tenant surface as ErrNotFound.
//
// # Retention
//
// Cleanup deletes entries older than the retention window in bounded id
// batches under a cutoff fixed at the start of the run. RetentionScheduler
// runs it for every tenant on a cron schedule.
package audit
