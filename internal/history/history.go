// Package history records playback start and stop actions in the
// playback_events table.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
)

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeFormat is fixed-width so created_at sorts lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Kind is the recorded action.
type Kind string

const (
	KindStart Kind = "start"
	KindStop  Kind = "stop"
)

// ErrInvalidEvent is returned by Record for events that cannot be stored.
var ErrInvalidEvent = errors.New("history: invalid event")

// Event is one playback action.
type Event struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Address string `json:"address"`

	// Pattern is the library name, empty for stops and anonymous patterns.
	Pattern string `json:"pattern,omitempty"`
	Loop    bool   `json:"loop"`

	// Keys are the actuators the address resolved to.
	Keys []device.FeatureKey `json:"keys"`

	// Source names the caller ("api", "cli").
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which events List returns.
type Filter struct {
	Kind    Kind      // optional
	Address string    // optional: exact address expression
	Pattern string    // optional
	Since   time.Time // optional: events at or after this instant
	Limit   int       // default 50, max 200
	Offset  int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the playback history operations.
type Repository interface {
	Record(ctx context.Context, e *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores events in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Event) error {
	if e == nil {
		return ErrInvalidEvent
	}
	if e.Kind != KindStart && e.Kind != KindStop {
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, e.Kind)
	}
	if strings.TrimSpace(e.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidEvent)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if e.Keys == nil {
		e.Keys = []device.FeatureKey{}
	}

	keys, err := json.Marshal(e.Keys)
	if err != nil {
		return fmt.Errorf("marshalling keys: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO playback_events (id, kind, address, pattern, loop, keys, actuators, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Address,
		nullableString(e.Pattern), boolToInt(e.Loop),
		string(keys), len(e.Keys),
		nullableString(e.Source),
		e.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting playback event: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns events matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Address != "" {
		conditions = append(conditions, "address = ?")
		args = append(args, filter.Address)
	}
	if filter.Pattern != "" {
		conditions = append(conditions, "pattern = ?")
		args = append(args, filter.Pattern)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM playback_events " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting playback events: %w", err)
	}

	query := "SELECT id, kind, address, pattern, loop, keys, source, created_at FROM playback_events " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying playback events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating playback events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var kind, keys, createdAt string
	var pattern, source sql.NullString
	var loop int

	if err := rows.Scan(&e.ID, &kind, &e.Address, &pattern, &loop, &keys, &source, &createdAt); err != nil {
		return Event{}, fmt.Errorf("scanning playback event: %w", err)
	}

	e.Kind = Kind(kind)
	e.Pattern = pattern.String
	e.Source = source.String
	e.Loop = loop != 0

	if err := json.Unmarshal([]byte(keys), &e.Keys); err != nil {
		return Event{}, fmt.Errorf("decoding keys of event %s: %w", e.ID, err)
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing playback event timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
