package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-scanning/internal/models"
)

const insertScanEventSQL = `INSERT INTO scan_events (qr_slot_id, client_event_id, scanned_at)
VALUES (?, ?, ?)
ON CONFLICT (client_event_id) DO NOTHING
RETURNING id`

// RecordScanEvent inserts a scan event keyed by clientEventID. It returns
// false when an event with the same key already exists; the caller must not
// count the scan again.
func (d *DB) RecordScanEvent(ctx context.Context, idb bun.IDB, slotID int64, clientEventID string, scannedAt time.Time) (bool, error) {
	var id int64
	err := idb.QueryRowContext(ctx, insertScanEventSQL, slotID, clientEventID, scannedAt.UTC()).Scan(&id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case IsUniqueViolation(err):
		return false, nil
	}
	return false, fmt.Errorf("insert scan event: %w", err)
}

// GetScanEvent looks an event up by its idempotency key.
func (d *DB) GetScanEvent(ctx context.Context, idb bun.IDB, clientEventID string) (*models.ScanEvent, error) {
	var ev models.ScanEvent
	err := idb.NewSelect().
		Model(&ev).
		Where("client_event_id = ?", clientEventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListBusScans returns the scans of every slot of busID recorded in
// [from, to), newest first.
func (d *DB) ListBusScans(ctx context.Context, busID int64, from, to time.Time) ([]models.BusScan, error) {
	var rows []models.BusScan
	err := d.Bun.NewSelect().
		TableExpr("scan_events AS se").
		ColumnExpr("se.id, se.qr_slot_id, se.client_event_id, se.scanned_at").
		ColumnExpr("qs.route_id, qs.trip_type, qs.scheduled_time").
		Join("JOIN qr_slots AS qs ON qs.id = se.qr_slot_id").
		Where("qs.bus_id = ?", busID).
		Where("se.scanned_at >= ?", from.UTC()).
		Where("se.scanned_at < ?", to.UTC()).
		OrderExpr("se.scanned_at DESC, se.id DESC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list bus scans: %w", err)
	}
	return rows, nil
}
