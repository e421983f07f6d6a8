package transfers

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
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, int, error)
}

// TxRepository is the write side, bound to one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	InsertBatch(ctx context.Context, b Batch) (Batch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	UpdateBatch(ctx context.Context, b Batch) error
	UpdateLine(ctx context.Context, l Line) error
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

type batchQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanBatch(ctx context.Context, q batchQuerier, id int64, forUpdate bool) (Batch, error) {
	sql := `
		SELECT id, reference, from_location_id, to_location_id, status, COALESCE(notes, ''), created_at, confirmed_by, confirmed_at
		FROM transfer_batches WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var b Batch
	err := q.QueryRow(ctx, sql, id).
		Scan(&b.ID, &b.Reference, &b.FromLocationID, &b.ToLocationID, &b.Status,
			&b.Notes, &b.CreatedAt, &b.ConfirmedBy, &b.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, fmt.Errorf("%w: transfer batch %d", shared.ErrNotFound, id)
		}
		return Batch{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, batch_id, product_id, quantity, status
		FROM stock_transfers WHERE batch_id = $1 ORDER BY id`, id)
	if err != nil {
		return Batch{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.BatchID, &l.ProductID, &l.Quantity, &l.Status); err != nil {
			return Batch{}, err
		}
		b.Lines = append(b.Lines, l)
	}
	return b, rows.Err()
}

func (r *repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(ctx, r.pool, id, false)
}

func (r *repository) ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, int, error) {
	countSQL := `SELECT COUNT(*) FROM transfer_batches WHERE 1=1`
	dataSQL := `
		SELECT id, reference, from_location_id, to_location_id, status, COALESCE(notes, ''), created_at, confirmed_by, confirmed_at
		FROM transfer_batches WHERE 1=1`
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
	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Reference, &b.FromLocationID, &b.ToLocationID, &b.Status,
			&b.Notes, &b.CreatedAt, &b.ConfirmedBy, &b.ConfirmedAt); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	return shared.NextDocumentNumber(ctx, r.tx, prefix)
}

func (r *txRepository) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO transfer_batches (reference, from_location_id, to_location_id, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		b.Reference, b.FromLocationID, b.ToLocationID, b.Status, b.Notes).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return Batch{}, fmt.Errorf("insert transfer batch: %w", err)
	}
	for i := range b.Lines {
		b.Lines[i].BatchID = b.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO stock_transfers (batch_id, product_id, quantity, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			b.ID, b.Lines[i].ProductID, b.Lines[i].Quantity, b.Lines[i].Status).
			Scan(&b.Lines[i].ID)
		if err != nil {
			return Batch{}, fmt.Errorf("insert stock transfer: %w", err)
		}
	}
	return b, nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateBatch(ctx context.Context, b Batch) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE transfer_batches
		SET status = $2, confirmed_by = $3, confirmed_at = $4
		WHERE id = $1`, b.ID, b.Status, b.ConfirmedBy, b.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("update transfer batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer batch %d", shared.ErrNotFound, b.ID)
	}
	return nil
}

func (r *txRepository) UpdateLine(ctx context.Context, l Line) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE stock_transfers SET status = $3
		WHERE id = $1 AND batch_id = $2`, l.ID, l.BatchID, l.Status)
	if err != nil {
		return fmt.Errorf("update stock transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock transfer %d", shared.ErrNotFound, l.ID)
	}
	return nil
}

func (r *txRepository) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	return stock.GetForUpdate(ctx, r.tx, productID, locationID)
}

func (r *txRepository) SaveStock(ctx context.Context, level stock.Level) error {
	return stock.Save(ctx, r.tx, level)
}
