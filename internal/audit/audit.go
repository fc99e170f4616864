package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sources of audit entries.
const (
	SourceKeypad  = "Keypad"
	SourceWeb     = "Web UI"
	SourceAI      = "AI"
	SourceSystem  = "System"
	SourceWeather = "Weather"
)

// Action types.
const (
	ActionScene      = "scene"
	ActionModeSwitch = "mode_switch"
	ActionLogging    = "logging"
	ActionProjector  = "projector"
	ActionHDMI       = "hdmi"
	ActionError      = "error"
	ActionAITraining = "ai_training"
	ActionConnection = "connection"
	ActionWeather    = "weather"
	ActionSystem     = "system"
)

// NoIP is stored when an entry has no client address.
const NoIP = "--"

const (
	dateLayout = "2006/01/02"
	timeLayout = "15:04:05"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Entry is a single audit trail row.
type Entry struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Source     string    `json:"source"`
	ActionType string    `json:"action_type"`
	Details    string    `json:"details"`
	IPAddress  string    `json:"ip_address"`
}

// Filter controls which entries List returns.
type Filter struct {
	Source     string // optional
	ActionType string // optional
	Limit      int    // default 50, max 500
	Offset     int
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the audit trail operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the audit_logs table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts e. ID, timestamps and the IP placeholder are filled in
// when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.Source == "" || e.ActionType == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	local := e.CreatedAt.Local()
	if e.Date == "" {
		e.Date = local.Format(dateLayout)
	}
	if e.Time == "" {
		e.Time = local.Format(timeLayout)
	}
	if e.IPAddress == "" {
		e.IPAddress = NoIP
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, created_at, date, time, source, action_type, details, ip_address)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.Date, e.Time,
		e.Source, e.ActionType, e.Details, e.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first. created_at has
// second resolution, so ties fall back to insertion order.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.ActionType != "" {
		conditions = append(conditions, "action_type = ?")
		args = append(args, filter.ActionType)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, created_at, date, time, source, action_type, details, ip_address
		 FROM audit_logs %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &createdAt, &e.Date, &e.Time,
			&e.Source, &e.ActionType, &e.Details, &e.IPAddress); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
