package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tebahq/teba/internal/shared"
)

// Repository provides read access to stock levels.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the level for a pair, or ErrNotFound when the pair has never
// been touched by a mutation.
func (r *Repository) Get(ctx context.Context, productID, locationID int64) (Level, error) {
	var level Level
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, location_id, quantity, updated_at
		FROM stock_levels
		WHERE product_id = $1 AND location_id = $2`, productID, locationID).
		Scan(&level.ProductID, &level.LocationID, &level.Quantity, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, shared.ErrNotFound
		}
		return Level{}, err
	}
	return level, nil
}

// ListFilter narrows a level listing.
type ListFilter struct {
	ProductID  int64
	LocationID int64
}

// List returns levels matching the filter, newest mutation first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Level, error) {
	sql := `SELECT product_id, location_id, quantity, updated_at FROM stock_levels WHERE 1=1`
	args := []any{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		sql += ` AND product_id = $1`
	}
	if filter.LocationID != 0 {
		args = append(args, filter.LocationID)
		if len(args) == 1 {
			sql += ` AND location_id = $1`
		} else {
			sql += ` AND location_id = $2`
		}
	}
	sql += ` ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []Level
	for rows.Next() {
		var level Level
		if err := rows.Scan(&level.ProductID, &level.LocationID, &level.Quantity, &level.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// TotalStock sums a product's quantity across every location.
func (r *Repository) TotalStock(ctx context.Context, productID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_levels WHERE product_id = $1`, productID).
		Scan(&total)
	return total, err
}

// LowStock lists products whose total on-hand quantity is at or below their
// reorder level.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.sku, p.name, p.reorder_level, COALESCE(SUM(s.quantity), 0) AS total
		FROM products p
		LEFT JOIN stock_levels s ON s.product_id = p.id
		GROUP BY p.id, p.sku, p.name, p.reorder_level
		HAVING COALESCE(SUM(s.quantity), 0) <= p.reorder_level
		ORDER BY total ASC, p.sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LowStockItem
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.ReorderLevel, &item.TotalStock); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
