// Package audit records every executed device command to SQLite and
// serves the queryable history behind the audit API.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openhearth/hearth-core/internal/dispatch"
)

// Entry is one executed command in the audit trail.
type Entry struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"device_id"`
	Kind     string    `json:"command_kind"`
	Value    int       `json:"value"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	DeviceID string // optional: only commands for this device
	Outcome  string // optional: "ok" or "error"
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains paginated audit entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository reads and writes the command_audit table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an entry. ID and IssuedAt are generated when empty.
func (r *Repository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()[:8]
	}
	if entry.IssuedAt.IsZero() {
		entry.IssuedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit (id, device_id, command_kind, value, outcome, error, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DeviceID, entry.Kind, entry.Value,
		entry.Outcome, nullableString(entry.Error),
		entry.IssuedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *Repository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE is assembled from fixed parameterised conditions; no user
	// input reaches the SQL string itself.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_audit %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, device_id, command_kind, value, outcome, error, issued_at FROM command_audit %s ORDER BY issued_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errMsg sql.NullString
		var issuedAt string

		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Kind, &e.Value,
			&e.Outcome, &errMsg, &issuedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}

		t, err := time.Parse(time.RFC3339, issuedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", issuedAt, err)
		}
		e.IssuedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Recorder adapts the repository to the dispatcher's audit hook.
//
// A failed insert is logged and otherwise swallowed: an audit failure
// must never fail the command itself.
type Recorder struct {
	repo   *Repository
	logger Logger
}

// Logger is the subset of logging.Logger the recorder uses.
type Logger interface {
	Error(msg string, args ...any)
}

// NewRecorder creates the dispatcher-facing recorder.
func NewRecorder(repo *Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordCommand persists one command outcome.
func (r *Recorder) RecordCommand(ctx context.Context, entry dispatch.CommandEntry) {
	e := &Entry{
		DeviceID: entry.DeviceID,
		Kind:     string(entry.Kind),
		Value:    entry.Value,
		Outcome:  entry.Outcome,
		Error:    entry.Error,
		IssuedAt: entry.Issued,
	}
	if err := r.repo.Create(ctx, e); err != nil {
		r.logger.Error("writing command audit entry failed",
			"device_id", entry.DeviceID,
			"error", err,
		)
	}
}

var _ dispatch.Recorder = (*Recorder)(nil)
