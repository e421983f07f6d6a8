package stocktake

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tebahq/teba/internal/platform/db"
	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
)

// Repository is the read side plus the transaction boundary.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (StockTake, error)
	List(ctx context.Context, status string, limit, offset int) ([]StockTake, int, error)
}

// TxRepository is the write side, bound to one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	Insert(ctx context.Context, st StockTake) (StockTake, error)
	GetForUpdate(ctx context.Context, id int64) (StockTake, error)
	Update(ctx context.Context, st StockTake) error
	UpdateItem(ctx context.Context, item Item) error
	// LevelsAtLocation reads the current ledger rows for the location so a new
	// stocktake can snapshot them.
	LevelsAtLocation(ctx context.Context, locationID int64) ([]stock.Level, error)
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

type takeQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanStockTake(ctx context.Context, q takeQuerier, id int64, forUpdate bool) (StockTake, error) {
	sql := `
		SELECT id, reference, location_id, status, COALESCE(notes, ''), created_at, completed_at
		FROM stock_takes WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var st StockTake
	err := q.QueryRow(ctx, sql, id).
		Scan(&st.ID, &st.Reference, &st.LocationID, &st.Status, &st.Notes, &st.CreatedAt, &st.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockTake{}, fmt.Errorf("%w: stocktake %d", shared.ErrNotFound, id)
		}
		return StockTake{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, stock_take_id, product_id, quantity_on_hand, quantity_counted, variance
		FROM stock_take_items WHERE stock_take_id = $1 ORDER BY id`, id)
	if err != nil {
		return StockTake{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.StockTakeID, &item.ProductID,
			&item.QuantityOnHand, &item.Counted, &item.Variance); err != nil {
			return StockTake{}, err
		}
		st.Items = append(st.Items, item)
	}
	return st, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (StockTake, error) {
	return scanStockTake(ctx, r.pool, id, false)
}

func (r *repository) List(ctx context.Context, status string, limit, offset int) ([]StockTake, int, error) {
	countSQL := `SELECT COUNT(*) FROM stock_takes WHERE 1=1`
	dataSQL := `
		SELECT id, reference, location_id, status, COALESCE(notes, ''), created_at, completed_at
		FROM stock_takes WHERE 1=1`
	args := []any{}
	if status != "" {
		args = append(args, status)
		countSQL += ` AND status = $1`
		dataSQL += ` AND status = $1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	dataSQL += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var takes []StockTake
	for rows.Next() {
		var st StockTake
		if err := rows.Scan(&st.ID, &st.Reference, &st.LocationID, &st.Status,
			&st.Notes, &st.CreatedAt, &st.CompletedAt); err != nil {
			return nil, 0, err
		}
		takes = append(takes, st)
	}
	return takes, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	return shared.NextDocumentNumber(ctx, r.tx, prefix)
}

func (r *txRepository) Insert(ctx context.Context, st StockTake) (StockTake, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_takes (reference, location_id, status, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		st.Reference, st.LocationID, st.Status, st.Notes).
		Scan(&st.ID, &st.CreatedAt)
	if err != nil {
		return StockTake{}, fmt.Errorf("insert stocktake: %w", err)
	}
	for i := range st.Items {
		st.Items[i].StockTakeID = st.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO stock_take_items (stock_take_id, product_id, quantity_on_hand)
			VALUES ($1, $2, $3)
			RETURNING id`,
			st.ID, st.Items[i].ProductID, st.Items[i].QuantityOnHand).
			Scan(&st.Items[i].ID)
		if err != nil {
			return StockTake{}, fmt.Errorf("insert stocktake item: %w", err)
		}
	}
	return st, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (StockTake, error) {
	return scanStockTake(ctx, r.tx, id, true)
}

func (r *txRepository) Update(ctx context.Context, st StockTake) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE stock_takes SET status = $2, completed_at = $3
		WHERE id = $1`, st.ID, st.Status, st.CompletedAt)
	if err != nil {
		return fmt.Errorf("update stocktake: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stocktake %d", shared.ErrNotFound, st.ID)
	}
	return nil
}

func (r *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE stock_take_items SET quantity_counted = $3, variance = $4
		WHERE id = $1 AND stock_take_id = $2`,
		item.ID, item.StockTakeID, item.Counted, item.Variance)
	if err != nil {
		return fmt.Errorf("update stocktake item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stocktake item %d", shared.ErrNotFound, item.ID)
	}
	return nil
}

func (r *txRepository) LevelsAtLocation(ctx context.Context, locationID int64) ([]stock.Level, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT product_id, location_id, quantity, updated_at
		FROM stock_levels WHERE location_id = $1 ORDER BY product_id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var levels []stock.Level
	for rows.Next() {
		var level stock.Level
		if err := rows.Scan(&level.ProductID, &level.LocationID, &level.Quantity, &level.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

func (r *txRepository) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	return stock.GetForUpdate(ctx, r.tx, productID, locationID)
}

func (r *txRepository) SaveStock(ctx context.Context, level stock.Level) error {
	return stock.Save(ctx, r.tx, level)
}
