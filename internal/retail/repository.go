package retail

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/platform/db"
	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
)

// Repository is the read side plus the transaction boundary.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLevel(ctx context.Context, productID, locationID int64) (Level, error)
	ListLevels(ctx context.Context, locationID int64) ([]Level, error)
	ListSales(ctx context.Context, limit, offset int) ([]Sale, int, error)
}

// TxRepository is the write side, bound to one transaction. The retail credit
// and the main-ledger debit must commit or roll back together.
type TxRepository interface {
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	LevelForUpdate(ctx context.Context, productID, locationID int64) (Level, error)
	SaveLevel(ctx context.Context, level Level) error
	StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error)
	SaveStock(ctx context.Context, level stock.Level) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetLevel(ctx context.Context, productID, locationID int64) (Level, error) {
	var level Level
	var qty string
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, location_id, quantity::text, updated_at
		FROM retail_stock_levels
		WHERE product_id = $1 AND location_id = $2`, productID, locationID).
		Scan(&level.ProductID, &level.LocationID, &qty, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, fmt.Errorf("%w: retail stock for product %d at location %d",
				shared.ErrNotFound, productID, locationID)
		}
		return Level{}, err
	}
	if level.Quantity, err = decimal.NewFromString(qty); err != nil {
		return Level{}, err
	}
	return level, nil
}

func (r *repository) ListLevels(ctx context.Context, locationID int64) ([]Level, error) {
	sql := `SELECT product_id, location_id, quantity::text, updated_at FROM retail_stock_levels`
	args := []any{}
	if locationID != 0 {
		sql += ` WHERE location_id = $1`
		args = append(args, locationID)
	}
	sql += ` ORDER BY product_id`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var levels []Level
	for rows.Next() {
		var level Level
		var qty string
		if err := rows.Scan(&level.ProductID, &level.LocationID, &qty, &level.UpdatedAt); err != nil {
			return nil, err
		}
		if level.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

func (r *repository) ListSales(ctx context.Context, limit, offset int) ([]Sale, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM retail_sales`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, location_id, amount_given::text, unit_price::text, quantity_given::text, created_at
		FROM retail_sales ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		var s Sale
		var amount, unit, qty string
		if err := rows.Scan(&s.ID, &s.ProductID, &s.LocationID, &amount, &unit, &qty, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		if s.AmountGiven, err = decimal.NewFromString(amount); err != nil {
			return nil, 0, err
		}
		if s.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, 0, err
		}
		if s.QuantityGiven, err = decimal.NewFromString(qty); err != nil {
			return nil, 0, err
		}
		sales = append(sales, s)
	}
	return sales, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO retail_sales (product_id, location_id, amount_given, unit_price, quantity_given)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		s.ProductID, s.LocationID, s.AmountGiven.String(), s.UnitPrice.String(), s.QuantityGiven.String()).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("insert retail sale: %w", err)
	}
	return s, nil
}

func (r *txRepository) LevelForUpdate(ctx context.Context, productID, locationID int64) (Level, error) {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO retail_stock_levels (product_id, location_id, quantity)
		VALUES ($1, $2, 0)
		ON CONFLICT (product_id, location_id) DO NOTHING`, productID, locationID)
	if err != nil {
		return Level{}, fmt.Errorf("ensure retail level: %w", err)
	}
	var level Level
	var qty string
	err = r.tx.QueryRow(ctx, `
		SELECT product_id, location_id, quantity::text, updated_at
		FROM retail_stock_levels
		WHERE product_id = $1 AND location_id = $2
		FOR UPDATE`, productID, locationID).
		Scan(&level.ProductID, &level.LocationID, &qty, &level.UpdatedAt)
	if err != nil {
		return Level{}, fmt.Errorf("lock retail level: %w", err)
	}
	if level.Quantity, err = decimal.NewFromString(qty); err != nil {
		return Level{}, err
	}
	return level, nil
}

func (r *txRepository) SaveLevel(ctx context.Context, level Level) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE retail_stock_levels
		SET quantity = $3, updated_at = NOW()
		WHERE product_id = $1 AND location_id = $2`,
		level.ProductID, level.LocationID, level.Quantity.String())
	if err != nil {
		return fmt.Errorf("save retail level: %w", err)
	}
	return nil
}

func (r *txRepository) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	return stock.GetForUpdate(ctx, r.tx, productID, locationID)
}

func (r *txRepository) SaveStock(ctx context.Context, level stock.Level) error {
	return stock.Save(ctx, r.tx, level)
}
