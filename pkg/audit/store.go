package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// Databases picks the connection for writes and for reads
type Databases interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

type singleDB struct{ db *sql.DB }

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

// Single uses db for both reads and writes
func Single(db *sql.DB) Databases {
	return singleDB{db: db}
}

// Config bounds reads and deletes
type Config struct {
	DefaultPageSize  int
	MaxPageSize      int
	ExportMaxRows    int
	CleanupBatchSize int
	DefaultStatsDays int
	MaxStatsDays     int
}

// DefaultConfig returns the standard limits
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		ExportMaxRows:    10000,
		CleanupBatchSize: 1000,
		DefaultStatsDays: 30,
		MaxStatsDays:     365,
	}
}

// Store appends activity log entries and serves tenant-scoped reads. Rows
// are never updated; they leave only through Cleanup.
type Store struct {
	dbs     Databases
	config  Config
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStore creates an audit store. Zero config fields take the defaults.
func NewStore(dbs Databases, config Config, metrics *observability.Metrics) *Store {
	def := DefaultConfig()
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = def.DefaultPageSize
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = def.MaxPageSize
	}
	if config.ExportMaxRows <= 0 {
		config.ExportMaxRows = def.ExportMaxRows
	}
	if config.CleanupBatchSize <= 0 {
		config.CleanupBatchSize = def.CleanupBatchSize
	}
	if config.DefaultStatsDays <= 0 {
		config.DefaultStatsDays = def.DefaultStatsDays
	}
	if config.MaxStatsDays <= 0 {
		config.MaxStatsDays = def.MaxStatsDays
	}
	return &Store{dbs: dbs, config: config, metrics: metrics, now: time.Now}
}

// Config returns the effective limits
func (s *Store) Config() Config {
	return s.config
}

// Record appends one entry. The tenant comes from the request scope, or the
// identity when no scope is installed; the user from the identity. Either may
// be absent for system events.
func (s *Store) Record(ctx context.Context, e Event) (*Entry, error) {
	entry := &Entry{Action: e.Action, EntityID: e.EntityID, Details: e.Details}
	if e.EntityType != "" {
		entityType := e.EntityType
		entry.EntityType = &entityType
	}

	identity, _ := auth.IdentityFromContext(ctx)
	if scope, ok := tenancy.FromContext(ctx); ok {
		id := scope.TenantID()
		entry.TenantID = &id
	} else if identity.HasTenant() {
		id := identity.TenantID
		entry.TenantID = &id
	}
	if identity != nil && identity.UserID > 0 {
		id := identity.UserID
		entry.UserID = &id
	}

	meta, _ := RequestMetaFromContext(ctx)
	if meta.IPAddress != "" {
		entry.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		entry.UserAgent = &meta.UserAgent
	}
	if requestID := firstNonEmpty(meta.RequestID, contextkeys.GetRequestID(ctx)); requestID != "" {
		if _, set := entry.Details["request_id"]; !set {
			details := make(map[string]interface{}, len(entry.Details)+1)
			for k, v := range entry.Details {
				details[k] = v
			}
			details["request_id"] = requestID
			entry.Details = details
		}
	}

	var details interface{}
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode details: %v", ErrWriteFailed, err)
		}
		details = data
	}

	err := s.dbs.Primary().QueryRowContext(ctx, `
		INSERT INTO activity_logs (tenant_id, user_id, action, entity_type, entity_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`,
		entry.TenantID, entry.UserID, string(entry.Action), entry.EntityType, entry.EntityID,
		details, entry.IPAddress, entry.UserAgent,
	).Scan(&entry.ID, &entry.CreatedAt)
	s.metrics.RecordAuditWrite(err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return entry, nil
}

const entryColumns = `l.id, l.tenant_id, COALESCE(t.name, ''), l.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
		l.action, l.entity_type, l.entity_id, l.details, l.ip_address, l.user_agent, l.created_at`

const entryJoins = `
		FROM activity_logs l
		LEFT JOIN users u ON u.id = l.user_id
		LEFT JOIN tenants t ON t.id = l.tenant_id`

// buildWhere renders the tenant predicate plus the filter, numbering
// placeholders from 1
func buildWhere(scope tenancy.Scope, f Filter) (string, []interface{}) {
	clause, tenantID := scope.Filter("l.tenant_id", 1)
	where := " WHERE " + clause
	args := []interface{}{tenantID}
	argCount := 2

	if f.UserID != nil {
		where += fmt.Sprintf(" AND l.user_id = $%d", argCount)
		args = append(args, *f.UserID)
		argCount++
	}
	if f.Action != "" {
		where += fmt.Sprintf(" AND l.action = $%d", argCount)
		args = append(args, f.Action)
		argCount++
	}
	if f.EntityType != "" {
		where += fmt.Sprintf(" AND l.entity_type = $%d", argCount)
		args = append(args, f.EntityType)
		argCount++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (l.action ILIKE $%d OR l.entity_type ILIKE $%d OR u.name ILIKE $%d OR u.email ILIKE $%d)",
			argCount, argCount, argCount, argCount)
		args = append(args, "%"+escapeLike(f.Search)+"%")
		argCount++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND l.created_at >= $%d", argCount)
		args = append(args, *f.From)
		argCount++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND l.created_at <= $%d", argCount)
		args = append(args, *f.To)
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Query returns one page of the tenant's entries, newest first
func (s *Store) Query(ctx context.Context, scope tenancy.Scope, f Filter, page Page) (*Result, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	page = s.normalizePage(page)
	db := s.dbs.Replica()
	where, args := buildWhere(scope, f)

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+entryJoins+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count activity logs: %w", err)
	}

	offset := (page.Number - 1) * page.Size
	query := `SELECT ` + entryColumns + entryJoins + where +
		fmt.Sprintf(" ORDER BY l.created_at DESC, l.id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	entries, err := s.queryEntries(ctx, db, query, append(args, page.Size, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}

	views := make([]View, len(entries))
	for i, e := range entries {
		views[i] = NewView(e)
	}
	return &Result{Data: views, Pagination: paginate(total, page, len(entries))}, nil
}

func (s *Store) normalizePage(p Page) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = s.config.DefaultPageSize
	}
	if p.Size > s.config.MaxPageSize {
		p.Size = s.config.MaxPageSize
	}
	return p
}

func paginate(total int64, page Page, n int) Pagination {
	last := int((total + int64(page.Size) - 1) / int64(page.Size))
	if last < 1 {
		last = 1
	}
	p := Pagination{CurrentPage: page.Number, LastPage: last, PerPage: page.Size, Total: total}
	if n > 0 {
		p.From = (page.Number-1)*page.Size + 1
		p.To = p.From + n - 1
	}
	return p
}

// Get returns one entry of the tenant. Another tenant's entry is ErrNotFound.
func (s *Store) Get(ctx context.Context, scope tenancy.Scope, id int64) (*View, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	clause, tenantID := scope.Filter("l.tenant_id", 2)
	query := `SELECT ` + entryColumns + entryJoins + ` WHERE l.id = $1 AND ` + clause

	entries, err := s.queryEntries(ctx, s.dbs.Replica(), query, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity log: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	view := NewView(entries[0])
	return &view, nil
}

func (s *Store) queryEntries(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                     Entry
		action                string
		tenantID, userID      sql.NullInt64
		entityID              sql.NullInt64
		entityType, ip, agent sql.NullString
		details               []byte
	)
	if err := row.Scan(
		&e.ID,
		&tenantID,
		&e.TenantName,
		&userID,
		&e.UserName,
		&e.UserEmail,
		&action,
		&entityType,
		&entityID,
		&details,
		&ip,
		&agent,
		&e.CreatedAt,
	); err != nil {
		return Entry{}, err
	}
	e.Action = Action(action)
	e.TenantID = nullInt(tenantID)
	e.UserID = nullInt(userID)
	e.EntityID = nullInt(entityID)
	e.EntityType = nullString(entityType)
	e.IPAddress = nullString(ip)
	e.UserAgent = nullString(agent)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return Entry{}, fmt.Errorf("failed to decode details of entry %d: %w", e.ID, err)
		}
	}
	return e, nil
}

// Statistics aggregates the last days of the tenant's activity. The four
// queries run concurrently against the read connection.
func (s *Store) Statistics(ctx context.Context, scope tenancy.Scope, days int) (*Statistics, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	if days == 0 {
		days = s.config.DefaultStatsDays
	}
	if days < 1 || days > s.config.MaxStatsDays {
		return nil, fmt.Errorf("days must be between 1 and %d", s.config.MaxStatsDays)
	}

	db := s.dbs.Replica()
	since := s.now().AddDate(0, 0, -days)
	clause, tenantID := scope.Filter("tenant_id", 1)
	where := " WHERE " + clause + " AND created_at >= $2"

	stats := &Statistics{PeriodDays: days, ActionBreakdown: []ActionCount{}, DailyActivity: []DayCount{}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := db.QueryRowContext(gctx, `SELECT COUNT(*) FROM activity_logs`+where, tenantID, since).Scan(&stats.TotalLogs)
		if err != nil {
			return fmt.Errorf("failed to count logs: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := db.QueryRowContext(gctx,
			`SELECT COUNT(DISTINCT user_id) FROM activity_logs`+where+` AND user_id IS NOT NULL`,
			tenantID, since).Scan(&stats.UniqueUsers)
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		return nil
	})

	var breakdown []ActionCount
	g.Go(func() error {
		rows, err := db.QueryContext(gctx,
			`SELECT action, COUNT(*) AS count FROM activity_logs`+where+
				` GROUP BY action ORDER BY count DESC, action ASC LIMIT 10`,
			tenantID, since)
		if err != nil {
			return fmt.Errorf("failed to load action breakdown: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var ac ActionCount
			if err := rows.Scan(&ac.Action, &ac.Count); err != nil {
				return fmt.Errorf("failed to scan action breakdown: %w", err)
			}
			ac.DisplayName = ac.Action.DisplayName()
			breakdown = append(breakdown, ac)
		}
		return rows.Err()
	})

	var daily []DayCount
	g.Go(func() error {
		rows, err := db.QueryContext(gctx,
			`SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS day, COUNT(*) FROM activity_logs`+where+
				` GROUP BY day ORDER BY day ASC`,
			tenantID, since)
		if err != nil {
			return fmt.Errorf("failed to load daily activity: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var dc DayCount
			if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
				return fmt.Errorf("failed to scan daily activity: %w", err)
			}
			daily = append(daily, dc)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if breakdown != nil {
		stats.ActionBreakdown = breakdown
	}
	if daily != nil {
		stats.DailyActivity = daily
	}
	return stats, nil
}

// FilterOptions lists the distinct actions, entity types and users present
// in the tenant's log
func (s *Store) FilterOptions(ctx context.Context, scope tenancy.Scope) (*FilterOptions, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	db := s.dbs.Replica()
	opts := &FilterOptions{Actions: []Option{}, EntityTypes: []Option{}, Users: []Option{}}

	actions, err := distinct(ctx, db,
		`SELECT DISTINCT action FROM activity_logs WHERE tenant_id = $1 ORDER BY action`, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to load actions: %w", err)
	}
	for _, a := range actions {
		opts.Actions = append(opts.Actions, Option{Value: a, Label: Action(a).DisplayName()})
	}

	types, err := distinct(ctx, db,
		`SELECT DISTINCT entity_type FROM activity_logs WHERE tenant_id = $1 AND entity_type IS NOT NULL ORDER BY entity_type`,
		scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to load entity types: %w", err)
	}
	for _, t := range types {
		opts.EntityTypes = append(opts.EntityTypes, Option{Value: t, Label: titleCase(t)})
	}

	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT u.id, u.name
		FROM activity_logs l
		JOIN users u ON u.id = l.user_id
		WHERE l.tenant_id = $1
		ORDER BY u.name, u.id`, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		opts.Users = append(opts.Users, Option{Value: fmt.Sprint(id), Label: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return opts, nil
}

func distinct(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
