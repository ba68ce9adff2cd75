package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fireplus/internal/models"
)

// ErrDeviceNotFound is returned by Update and Delete when no row matches.
var ErrDeviceNotFound = errors.New("device not found")

type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite {
	return &DeviceSQLite{db: db}
}

var _ DeviceRepo = (*DeviceSQLite)(nil)

const (
	insertDeviceSQL = `
		INSERT INTO devices (id, unique_id, title, host, interval_s, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	updateDeviceSQL = `
		UPDATE devices SET title = ?, host = ?, interval_s = ?, updated_at = ?
		WHERE id = ?
	`

	deleteDeviceSQL = `DELETE FROM devices WHERE id = ?`

	selectDeviceColumns = `SELECT id, unique_id, title, host, interval_s, created_at, updated_at FROM devices`
)

// utcNowIfZero keeps stored timestamps in UTC.
func utcNowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Create inserts a new device row.
func (r *DeviceSQLite) Create(ctx context.Context, d models.Device) error {
	created := utcNowIfZero(d.CreatedAt)
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := r.db.ExecContext(ctx, insertDeviceSQL,
		d.ID,
		d.UniqueID,
		d.Title,
		d.Host,
		d.IntervalSec,
		created,
		updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert device %q: %w", d.UniqueID, err)
	}
	return nil
}

// Update rewrites the mutable columns of a device.
func (r *DeviceSQLite) Update(ctx context.Context, d models.Device) error {
	res, err := r.db.ExecContext(ctx, updateDeviceSQL,
		d.Title,
		d.Host,
		d.IntervalSec,
		utcNowIfZero(d.UpdatedAt),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("update device %q: %w", d.ID, err)
	}
	return requireAffected(res, d.ID)
}

// Delete removes a device row.
func (r *DeviceSQLite) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteDeviceSQL, id)
	if err != nil {
		return fmt.Errorf("delete device %q: %w", id, err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for device %q: %w", id, err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Get fetches a device by id. Returns (nil, nil) if not found.
func (r *DeviceSQLite) Get(ctx context.Context, id string) (*models.Device, error) {
	return r.getOne(ctx, selectDeviceColumns+` WHERE id = ?`, id)
}

// GetByUniqueID fetches a device by its host slug. Returns (nil, nil) if not found.
func (r *DeviceSQLite) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error) {
	return r.getOne(ctx, selectDeviceColumns+` WHERE unique_id = ?`, uniqueID)
}

func (r *DeviceSQLite) getOne(ctx context.Context, query, arg string) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select device %q: %w", arg, err)
	}
	return &d, nil
}

// List returns all devices ordered by creation time.
func (r *DeviceSQLite) List(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDeviceColumns+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	out := make([]models.Device, 0, 4)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (models.Device, error) {
	var d models.Device
	if err := row.Scan(
		&d.ID,
		&d.UniqueID,
		&d.Title,
		&d.Host,
		&d.IntervalSec,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return models.Device{}, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}
