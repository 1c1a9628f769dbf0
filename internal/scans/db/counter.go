package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-scanning/internal/models"
)

// The conflict target matches the unique (qr_slot_id, day) constraint, so two
// first scans of the same day cannot both create a row.
const upsertDailyCountSQL = `INSERT INTO scan_counters (qr_slot_id, day, count)
VALUES (?, ?, 1)
ON CONFLICT (qr_slot_id, day) DO UPDATE SET count = scan_counters.count + 1
RETURNING count`

// IncrementDailyCount creates the (slot, day) counter with count 1 or bumps
// the existing one, returning the post-increment count.
func (d *DB) IncrementDailyCount(ctx context.Context, idb bun.IDB, slotID int64, day models.Day) (int64, error) {
	var count int64
	if err := idb.QueryRowContext(ctx, upsertDailyCountSQL, slotID, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("upsert daily count: %w", err)
	}
	return count, nil
}

// GetDailyCount returns the count for (slot, day), zero when no row exists.
func (d *DB) GetDailyCount(ctx context.Context, idb bun.IDB, slotID int64, day models.Day) (int64, error) {
	var counter models.ScanCounter
	err := idb.NewSelect().
		Model(&counter).
		Where("qr_slot_id = ?", slotID).
		Where("day = ?", day).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily count: %w", err)
	}
	return counter.Count, nil
}

// ListCountersForSlot returns every daily counter of a slot, newest first.
func (d *DB) ListCountersForSlot(ctx context.Context, slotID int64) ([]models.ScanCounter, error) {
	var counters []models.ScanCounter
	err := d.Bun.NewSelect().
		Model(&counters).
		Where("qr_slot_id = ?", slotID).
		Order("day DESC").
		Scan(ctx)
	return counters, err
}

// ListCountersForDay returns all counters of one calendar day.
func (d *DB) ListCountersForDay(ctx context.Context, day models.Day) ([]models.ScanCounter, error) {
	var counters []models.ScanCounter
	err := d.Bun.NewSelect().
		Model(&counters).
		Where("day = ?", day).
		Order("qr_slot_id").
		Scan(ctx)
	return counters, err
}
