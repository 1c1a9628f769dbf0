package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-scanning/internal/models"
)

// ResolveActiveSlot returns the active slot owning token. Inactive slots
// resolve as ErrSlotNotFound even when the token matches. On PostgreSQL the
// row is share-locked so a concurrent deactivation waits for idb to finish.
func (d *DB) ResolveActiveSlot(ctx context.Context, idb bun.IDB, token string) (*models.QRSlot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSlotNotFound
	}

	var slot models.QRSlot
	q := idb.NewSelect().
		Model(&slot).
		Where("token = ?", token).
		Where("is_active = ?", true).
		Limit(1)
	if idb.Dialect().Name() == dialect.PG {
		q = q.For("SHARE")
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("resolve slot: %w", err)
	}
	return &slot, nil
}

// GetActiveSlot is ResolveActiveSlot outside of any transaction.
func (d *DB) GetActiveSlot(ctx context.Context, token string) (*models.QRSlot, error) {
	return d.ResolveActiveSlot(ctx, d.Bun, token)
}
