package stock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx.Tx the ledger helpers need. Document services
// pass their own transaction so a document write and its stock mutation
// commit or roll back together.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetForUpdate returns the level row locked for the current transaction,
// creating it at zero if it does not exist yet. The row lock serialises
// concurrent mutations of the same (product, location) pair.
func GetForUpdate(ctx context.Context, q Querier, productID, locationID int64) (Level, error) {
	if productID == 0 || locationID == 0 {
		return Level{}, fmt.Errorf("stock: product and location required")
	}
	_, err := q.Exec(ctx, `
		INSERT INTO stock_levels (product_id, location_id, quantity)
		VALUES ($1, $2, 0)
		ON CONFLICT (product_id, location_id) DO NOTHING`, productID, locationID)
	if err != nil {
		return Level{}, fmt.Errorf("stock: ensure level: %w", err)
	}
	var level Level
	err = q.QueryRow(ctx, `
		SELECT product_id, location_id, quantity, updated_at
		FROM stock_levels
		WHERE product_id = $1 AND location_id = $2
		FOR UPDATE`, productID, locationID).
		Scan(&level.ProductID, &level.LocationID, &level.Quantity, &level.UpdatedAt)
	if err != nil {
		return Level{}, fmt.Errorf("stock: lock level: %w", err)
	}
	return level, nil
}

// Save writes the mutated level back. Must run on the same transaction that
// locked the row.
func Save(ctx context.Context, q Querier, level Level) error {
	_, err := q.Exec(ctx, `
		UPDATE stock_levels
		SET quantity = $3, updated_at = NOW()
		WHERE product_id = $1 AND location_id = $2`,
		level.ProductID, level.LocationID, level.Quantity)
	if err != nil {
		return fmt.Errorf("stock: save level: %w", err)
	}
	return nil
}
