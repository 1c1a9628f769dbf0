package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"ms-scanning/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// RunInTx runs fn inside one transaction. fn's error (or a panic) rolls the
// transaction back; a nil return commits it.
func (d *DB) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, opts, fn)
}

// Ping checks the underlying connection pool.
func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

// CreateSchema creates every table in dependency order. Production schemas
// come from the SQL migrations; this is used by tests and local tooling.
func CreateSchema(ctx context.Context, idb bun.IDB) error {
	tables := []interface{}{
		(*models.Bus)(nil),
		(*models.Route)(nil),
		(*models.QRSlot)(nil),
		(*models.ScanEvent)(nil),
		(*models.ScanCounter)(nil),
	}
	for _, m := range tables {
		if _, err := idb.NewCreateTable().Model(m).IfNotExists().WithForeignKeys().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", m, err)
		}
	}

	if _, err := idb.NewCreateIndex().
		Model((*models.ScanEvent)(nil)).
		Index("scan_events_qr_slot_id_idx").
		IfNotExists().
		Column("qr_slot_id").
		Exec(ctx); err != nil {
		return fmt.Errorf("creating scan_events index: %w", err)
	}
	return nil
}
