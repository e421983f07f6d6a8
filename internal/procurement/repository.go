package procurement

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
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error)
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, status string, limit, offset int) ([]PurchaseOrder, int, error)
}

// TxRepository is the write side. Every method runs on one transaction, so a
// document insert and its stock credit commit or roll back together.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	InsertOrder(ctx context.Context, o PurchaseOrder) (PurchaseOrder, error)
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrder(ctx context.Context, o PurchaseOrder) error
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

func (r *repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	var total string
	err := r.pool.QueryRow(ctx, `
		SELECT id, reference, supplier_id, location_id, total_cost::text, COALESCE(notes, ''), created_at
		FROM purchases WHERE id = $1`, id).
		Scan(&p.ID, &p.Reference, &p.SupplierID, &p.LocationID, &total, &p.Notes, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, fmt.Errorf("%w: purchase %d", shared.ErrNotFound, id)
		}
		return Purchase{}, err
	}
	if p.TotalCost, err = decimal.NewFromString(total); err != nil {
		return Purchase{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, purchase_id, product_id, quantity, unit_cost::text, line_total::text
		FROM purchase_items WHERE purchase_id = $1 ORDER BY id`, id)
	if err != nil {
		return Purchase{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PurchaseItem
		var unit, line string
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Quantity, &unit, &line); err != nil {
			return Purchase{}, err
		}
		if item.UnitCost, err = decimal.NewFromString(unit); err != nil {
			return Purchase{}, err
		}
		if item.LineTotal, err = decimal.NewFromString(line); err != nil {
			return Purchase{}, err
		}
		p.Items = append(p.Items, item)
	}
	return p, rows.Err()
}

func (r *repository) ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, reference, supplier_id, location_id, total_cost::text, COALESCE(notes, ''), created_at
		FROM purchases ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		var totalCost string
		if err := rows.Scan(&p.ID, &p.Reference, &p.SupplierID, &p.LocationID, &totalCost, &p.Notes, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		if p.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

func (r *repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(ctx, r.pool, id, false)
}

func (r *repository) ListOrders(ctx context.Context, status string, limit, offset int) ([]PurchaseOrder, int, error) {
	countSQL := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
	dataSQL := `
		SELECT id, reference, supplier_id, location_id, status, expected_date, total_cost::text, COALESCE(notes, ''), created_at, received_at
		FROM purchase_orders WHERE 1=1`
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
	var orders []PurchaseOrder
	for rows.Next() {
		var o PurchaseOrder
		var totalCost string
		if err := rows.Scan(&o.ID, &o.Reference, &o.SupplierID, &o.LocationID, &o.Status,
			&o.ExpectedDate, &totalCost, &o.Notes, &o.CreatedAt, &o.ReceivedAt); err != nil {
			return nil, 0, err
		}
		if o.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

type orderQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanOrder(ctx context.Context, q orderQuerier, id int64, forUpdate bool) (PurchaseOrder, error) {
	sql := `
		SELECT id, reference, supplier_id, location_id, status, expected_date, total_cost::text, COALESCE(notes, ''), created_at, received_at
		FROM purchase_orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var o PurchaseOrder
	var total string
	err := q.QueryRow(ctx, sql, id).
		Scan(&o.ID, &o.Reference, &o.SupplierID, &o.LocationID, &o.Status,
			&o.ExpectedDate, &total, &o.Notes, &o.CreatedAt, &o.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
		}
		return PurchaseOrder{}, err
	}
	if o.TotalCost, err = decimal.NewFromString(total); err != nil {
		return PurchaseOrder{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_cost::text, line_total::text
		FROM purchase_order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PurchaseOrderItem
		var unit, line string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &unit, &line); err != nil {
			return PurchaseOrder{}, err
		}
		if item.UnitCost, err = decimal.NewFromString(unit); err != nil {
			return PurchaseOrder{}, err
		}
		if item.LineTotal, err = decimal.NewFromString(line); err != nil {
			return PurchaseOrder{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	return shared.NextDocumentNumber(ctx, r.tx, prefix)
}

func (r *txRepository) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchases (reference, supplier_id, location_id, total_cost, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.Reference, p.SupplierID, p.LocationID, p.TotalCost.String(), p.Notes).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	for i := range p.Items {
		p.Items[i].PurchaseID = p.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			p.ID, p.Items[i].ProductID, p.Items[i].Quantity,
			p.Items[i].UnitCost.String(), p.Items[i].LineTotal.String()).
			Scan(&p.Items[i].ID)
		if err != nil {
			return Purchase{}, fmt.Errorf("insert purchase item: %w", err)
		}
	}
	return p, nil
}

func (r *txRepository) InsertOrder(ctx context.Context, o PurchaseOrder) (PurchaseOrder, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (reference, supplier_id, location_id, status, expected_date, total_cost, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		o.Reference, o.SupplierID, o.LocationID, o.Status, o.ExpectedDate, o.TotalCost.String(), o.Notes).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("insert purchase order: %w", err)
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO purchase_order_items (order_id, product_id, quantity, unit_cost, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			o.ID, o.Items[i].ProductID, o.Items[i].Quantity,
			o.Items[i].UnitCost.String(), o.Items[i].LineTotal.String()).
			Scan(&o.Items[i].ID)
		if err != nil {
			return PurchaseOrder{}, fmt.Errorf("insert purchase order item: %w", err)
		}
	}
	return o, nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateOrder(ctx context.Context, o PurchaseOrder) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_at = $3
		WHERE id = $1`, o.ID, o.Status, o.ReceivedAt)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, o.ID)
	}
	return nil
}

func (r *txRepository) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	return stock.GetForUpdate(ctx, r.tx, productID, locationID)
}

func (r *txRepository) SaveStock(ctx context.Context, level stock.Level) error {
	return stock.Save(ctx, r.tx, level)
}
