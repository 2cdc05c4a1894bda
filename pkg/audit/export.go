package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// ExportTimeLayout is the Date/Time column format
const ExportTimeLayout = "2006-01-02 15:04:05"

// ExportHeader is the first CSV row
var ExportHeader = []string{
	"ID",
	"Date/Time",
	"Action",
	"User",
	"SME",
	"Entity Type",
	"Entity ID",
	"IP Address",
	"User Agent",
	"Details",
}

const notAvailable = "N/A"

// ExportCSV writes the tenant's filtered entries to w, newest first, without
// pagination and capped at the configured row limit. It returns the number of
// data rows written.
func (s *Store) ExportCSV(ctx context.Context, scope tenancy.Scope, f Filter, w io.Writer) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	where, args := buildWhere(scope, f)
	query := `SELECT ` + entryColumns + entryJoins + where +
		fmt.Sprintf(" ORDER BY l.created_at DESC, l.id DESC LIMIT $%d", len(args)+1)

	rows, err := s.dbs.Replica().QueryContext(ctx, query, append(args, s.config.ExportMaxRows)...)
	if err != nil {
		return 0, fmt.Errorf("failed to query activity logs for export: %w", err)
	}
	defer rows.Close()

	writer := csv.NewWriter(w)
	if err := writer.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}

	n := 0
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return n, fmt.Errorf("failed to scan activity log: %w", err)
		}
		record, err := exportRecord(e)
		if err != nil {
			return n, err
		}
		if err := writer.Write(record); err != nil {
			return n, fmt.Errorf("failed to write CSV row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("failed to read activity logs for export: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return n, fmt.Errorf("CSV writer error: %w", err)
	}
	s.metrics.RecordExportRows(n)
	return n, nil
}

func exportRecord(e Entry) ([]string, error) {
	details := []byte("[]")
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return nil, fmt.Errorf("failed to encode details of entry %d: %w", e.ID, err)
		}
	}

	user := "System"
	if e.UserID != nil && e.UserName != "" {
		user = e.UserName
	}
	tenant := notAvailable
	if e.TenantID != nil && e.TenantName != "" {
		tenant = e.TenantName
	}

	return []string{
		strconv.FormatInt(e.ID, 10),
		e.CreatedAt.Format(ExportTimeLayout),
		e.Action.DisplayName(),
		user,
		tenant,
		stringOr(e.EntityType),
		int64Or(e.EntityID),
		stringOr(e.IPAddress),
		stringOr(e.UserAgent),
		string(details),
	}, nil
}

func stringOr(v *string) string {
	if v == nil || *v == "" {
		return notAvailable
	}
	return *v
}

func int64Or(v *int64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatInt(*v, 10)
}

// ArchivedExport describes a stored export file
type ArchivedExport struct {
	Filename string `json:"filename"`
	Key      string `json:"-"`
	Rows     int    `json:"rows"`
}

// Exporter stores CSV exports in an ObjectStore under a per-tenant prefix
type Exporter struct {
	store   *Store
	objects storage.ObjectStore
	now     func() time.Time
}

// NewExporter creates an exporter. objects must not be nil.
func NewExporter(store *Store, objects storage.ObjectStore) *Exporter {
	return &Exporter{store: store, objects: objects, now: time.Now}
}

// Archive renders the export and stores it
func (x *Exporter) Archive(ctx context.Context, scope tenancy.Scope, f Filter) (*ArchivedExport, error) {
	var buf bytes.Buffer
	n, err := x.store.ExportCSV(ctx, scope, f, &buf)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("activity-logs-%s-%s.csv", x.now().UTC().Format("2006-01-02"), uuid.NewString())
	key := exportKey(scope, filename)
	if err := x.objects.Put(ctx, key, &buf, "text/csv"); err != nil {
		return nil, fmt.Errorf("failed to store export: %w", err)
	}
	return &ArchivedExport{Filename: filename, Key: key, Rows: n}, nil
}

// Open returns a stored export of the tenant. Unknown names and other
// tenants' files are ErrNotFound.
func (x *Exporter) Open(ctx context.Context, scope tenancy.Scope, filename string) (io.ReadCloser, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	if !validExportName(filename) {
		return nil, ErrNotFound
	}
	key := exportKey(scope, filename)
	if err := storage.ValidateKey(key); err != nil {
		return nil, ErrNotFound
	}
	rc, err := x.objects.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	return rc, nil
}

func exportKey(scope tenancy.Scope, filename string) string {
	return fmt.Sprintf("tenants/%d/%s", scope.TenantID(), filename)
}

func validExportName(name string) bool {
	return strings.HasPrefix(name, "activity-logs-") &&
		strings.HasSuffix(name, ".csv") &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}
