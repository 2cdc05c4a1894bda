package audit

import (
	"context"
	"errors"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
)

var (
	// ErrNotFound is returned for missing entries and for entries of another tenant
	ErrNotFound = errors.New("activity log not found")

	// ErrWriteFailed wraps a failed insert
	ErrWriteFailed = errors.New("activity log write failed")
)

// Entry is one immutable activity log row
type Entry struct {
	ID         int64                  `json:"id"`
	TenantID   *int64                 `json:"sme_id"`
	TenantName string                 `json:"sme_name,omitempty"`
	UserID     *int64                 `json:"user_id"`
	UserName   string                 `json:"user_name,omitempty"`
	UserEmail  string                 `json:"user_email,omitempty"`
	Action     Action                 `json:"action"`
	EntityType *string                `json:"entity_type"`
	EntityID   *int64                 `json:"entity_id"`
	Details    map[string]interface{} `json:"details"`
	IPAddress  *string                `json:"ip_address"`
	UserAgent  *string                `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
}

// View adds the presentation fields clients render
type View struct {
	Entry
	ActionDisplayName string   `json:"action_display_name"`
	SeverityLevel     Severity `json:"severity_level"`
	SeverityColor     string   `json:"severity_color"`
}

// NewView decorates e for display
func NewView(e Entry) View {
	info := e.Action.Info()
	return View{
		Entry:             e,
		ActionDisplayName: info.DisplayName,
		SeverityLevel:     info.Severity,
		SeverityColor:     info.Severity.Color(),
	}
}

// Event is what a caller asks to have recorded. Tenant, user and request
// metadata come from the context.
type Event struct {
	Action     Action
	EntityType string
	EntityID   *int64
	Details    map[string]interface{}
}

// Filter narrows a query. From and To are inclusive.
type Filter struct {
	UserID     *int64
	Action     string
	EntityType string
	Search     string
	From       *time.Time
	To         *time.Time
}

// Page selects a slice of a result set; Number starts at 1
type Page struct {
	Number int
	Size   int
}

// Pagination describes the returned slice
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	From        int   `json:"from"`
	To          int   `json:"to"`
}

// Result is one page of entries, newest first
type Result struct {
	Data       []View     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ActionCount is one action's share of a window
type ActionCount struct {
	Action      Action `json:"action"`
	DisplayName string `json:"display_name"`
	Count       int64  `json:"count"`
}

// DayCount is the number of entries on one calendar day
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Statistics aggregates a tenant's activity over a window of days
type Statistics struct {
	TotalLogs       int64         `json:"total_logs"`
	UniqueUsers     int64         `json:"unique_users"`
	ActionBreakdown []ActionCount `json:"action_breakdown"`
	DailyActivity   []DayCount    `json:"daily_activity"`
	PeriodDays      int           `json:"period_days"`
}

// Option is one choice of a filter drop-down
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FilterOptions lists the values present in a tenant's log
type FilterOptions struct {
	Actions     []Option `json:"actions"`
	EntityTypes []Option `json:"entity_types"`
	Users       []Option `json:"users"`
}

// RequestMeta is the originating request as seen by the recorder
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// WithRequestMeta stores request metadata on ctx
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return contextkeys.WithRequestMeta(ctx, meta)
}

// RequestMetaFromContext returns the metadata captured by Middleware
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(contextkeys.RequestMetaKey).(RequestMeta)
	return meta, ok
}
