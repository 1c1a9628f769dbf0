// Package scantest sets up in-memory SQLite stores for scan tests.
package scantest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-scanning/internal/models"
	"ms-scanning/internal/scans/db"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the scan schema.
// The pool is capped at one connection so concurrent transactions queue on
// the pool instead of failing with SQLITE_BUSY.
func NewDB(t *testing.T) *db.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	return &db.DB{Bun: bunDB}
}

// SeedSlot inserts a bus, a route and one slot owning token.
func SeedSlot(t *testing.T, d *db.DB, token string, active bool) *models.QRSlot {
	t.Helper()
	ctx := context.Background()

	bus := &models.Bus{BusNumber: "BUS-" + token, IsActive: true}
	_, err := d.Bun.NewInsert().Model(bus).Exec(ctx)
	require.NoError(t, err)

	route := &models.Route{Code: "R-" + token, Name: "Route " + token, IsActive: true}
	_, err = d.Bun.NewInsert().Model(route).Exec(ctx)
	require.NoError(t, err)

	slot := &models.QRSlot{
		BusID:         bus.ID,
		RouteID:       route.ID,
		TripType:      models.TripEntry,
		ScheduledTime: "07:30:00",
		Token:         token,
		IsActive:      active,
	}
	_, err = d.Bun.NewInsert().Model(slot).Exec(ctx)
	require.NoError(t, err)
	return slot
}

// CountEvents returns the number of scan_events rows.
func CountEvents(t *testing.T, d *db.DB) int {
	t.Helper()
	n, err := d.Bun.NewSelect().Model((*models.ScanEvent)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

// Counters returns every scan_counters row.
func Counters(t *testing.T, d *db.DB) []models.ScanCounter {
	t.Helper()
	var counters []models.ScanCounter
	err := d.Bun.NewSelect().Model(&counters).Order("qr_slot_id", "day").Scan(context.Background())
	require.NoError(t, err)
	return counters
}
