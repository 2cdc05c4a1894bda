package audit

import (
	"context"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
)

// Recorder records an event on behalf of a business operation. It never
// fails the caller; write failures are the recorder's concern.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// writer is the part of Store a recorder needs
type writer interface {
	Record(ctx context.Context, e Event) (*Entry, error)
}

// BestEffortRecorder writes each event synchronously and swallows failures
// after logging them. The write survives cancellation of the request context
// but is bounded by timeout.
type BestEffortRecorder struct {
	store   writer
	timeout time.Duration
}

// NewBestEffortRecorder wraps store. A non-positive timeout defaults to 5s.
func NewBestEffortRecorder(store writer, timeout time.Duration) *BestEffortRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BestEffortRecorder{store: store, timeout: timeout}
}

// Record writes e, logging and dropping any error
func (r *BestEffortRecorder) Record(ctx context.Context, e Event) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if _, err := r.store.Record(writeCtx, e); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("action", string(e.Action)).
			Error("failed to record activity log")
	}
}

// RecordDenial records a rejected permission check as permission.denied
func (r *BestEffortRecorder) RecordDenial(ctx context.Context, d authz.Decision) {
	r.Record(ctx, Event{
		Action:     ActionPermissionDenied,
		EntityType: "module",
		Details: map[string]interface{}{
			"module":    d.Module,
			"operation": string(d.Operation),
			"reason":    d.Reason,
		},
	})
}

// Discard drops every event
type Discard struct{}

// Record does nothing
func (Discard) Record(context.Context, Event) {}

// RecordDenial does nothing
func (Discard) RecordDenial(context.Context, authz.Decision) {}

var (
	_ Recorder             = (*BestEffortRecorder)(nil)
	_ authz.DenialRecorder = (*BestEffortRecorder)(nil)
	_ Recorder             = Discard{}
)
