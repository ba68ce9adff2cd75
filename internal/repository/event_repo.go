package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"fireplus/internal/models"

	"github.com/google/uuid"
)

// sqliteTimestamp is the layout events are stored and filtered with.
const sqliteTimestamp = "2006-01-02 15:04:05"

const (
	insertEventSQL = `
		INSERT INTO device_events (id, device_id, occurred_at, type, message, meta)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectEventsSQL = `SELECT id, device_id, occurred_at, type, message, meta FROM device_events`
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

// Append inserts a new event. If EventID or OccurredAt are empty, they're set.
func (r *EventSQLite) Append(ctx context.Context, e models.DeviceEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	e.OccurredAt = utcNowIfZero(e.OccurredAt)

	var metaPtr *string
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			s := string(b)
			metaPtr = &s
		}
	}

	var devicePtr *string
	if e.DeviceID != "" {
		devicePtr = &e.DeviceID
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		devicePtr,
		e.OccurredAt.Format(sqliteTimestamp),
		strings.ToUpper(strings.TrimSpace(e.Type)),
		e.Description,
		metaPtr,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.Type, err)
	}
	return nil
}

// List returns events matching f, ordered by time ascending. Bounds are inclusive.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.DeviceEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(sqliteTimestamp))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(sqliteTimestamp))
	}
	if typ := strings.ToUpper(strings.TrimSpace(f.Type)); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}
	if dev := strings.TrimSpace(f.DeviceID); dev != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, dev)
	}

	q := selectEventsSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]models.DeviceEvent, 0, 64)
	for rows.Next() {
		var (
			ev        models.DeviceEvent
			deviceStr sql.NullString
			metaStr   sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &deviceStr, &ev.OccurredAt, &ev.Type, &ev.Description, &metaStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.DeviceID = deviceStr.String

		if metaStr.Valid && metaStr.String != "" {
			var v any
			if err := json.Unmarshal([]byte(metaStr.String), &v); err == nil {
				ev.Metadata = v
			} else {
				ev.Metadata = metaStr.String // keep raw if malformed
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
