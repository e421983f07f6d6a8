package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

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
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, status string, limit, offset int) ([]Sale, int, error)
	GetOrder(ctx context.Context, id int64) (SaleOrder, error)
	ListOrders(ctx context.Context, status string, limit, offset int) ([]SaleOrder, int, error)
	// MarkOverdue flips sent sales past due in one statement and returns the
	// affected IDs.
	MarkOverdue(ctx context.Context, asOf time.Time) ([]int64, error)
}

// TxRepository is the write side, bound to one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	InsertItem(ctx context.Context, item SaleItem) (SaleItem, error)
	UpdateItem(ctx context.Context, item SaleItem) error
	ListItems(ctx context.Context, saleID int64) ([]SaleItem, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	ListPayments(ctx context.Context, saleID int64) ([]Payment, error)
	UpdateSale(ctx context.Context, s Sale) error
	InsertOrder(ctx context.Context, o SaleOrder) (SaleOrder, error)
	GetOrderForUpdate(ctx context.Context, id int64) (SaleOrder, error)
	UpdateOrder(ctx context.Context, o SaleOrder) error
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

type saleQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanSale(ctx context.Context, q saleQuerier, id int64, forUpdate bool) (Sale, error) {
	sql := `
		SELECT id, reference, customer_id, location_id, status, total_amount::text, paid_amount::text, due_date, COALESCE(notes, ''), created_at
		FROM sales WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var s Sale
	var total, paid string
	err := q.QueryRow(ctx, sql, id).
		Scan(&s.ID, &s.Reference, &s.CustomerID, &s.LocationID, &s.Status, &total, &paid, &s.DueDate, &s.Notes, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
		}
		return Sale{}, err
	}
	if s.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return Sale{}, err
	}
	if s.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return Sale{}, err
	}
	if s.Items, err = listItems(ctx, q, id); err != nil {
		return Sale{}, err
	}
	if s.Payments, err = listPayments(ctx, q, id); err != nil {
		return Sale{}, err
	}
	return s, nil
}

func listItems(ctx context.Context, q saleQuerier, saleID int64) ([]SaleItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price::text, line_total::text
		FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SaleItem
	for rows.Next() {
		var item SaleItem
		var unit, line string
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &unit, &line); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if item.LineTotal, err = decimal.NewFromString(line); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func listPayments(ctx context.Context, q saleQuerier, saleID int64) ([]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, sale_id, reference, amount::text, method, paid_at
		FROM payments WHERE sale_id = $1 ORDER BY paid_at, id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		var amount string
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Reference, &amount, &p.Method, &p.PaidAt); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	return scanSale(ctx, r.pool, id, false)
}

func (r *repository) ListSales(ctx context.Context, status string, limit, offset int) ([]Sale, int, error) {
	countSQL := `SELECT COUNT(*) FROM sales WHERE 1=1`
	dataSQL := `
		SELECT id, reference, customer_id, location_id, status, total_amount::text, paid_amount::text, due_date, COALESCE(notes, ''), created_at
		FROM sales WHERE 1=1`
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
	var sales []Sale
	for rows.Next() {
		var s Sale
		var totalAmount, paidAmount string
		if err := rows.Scan(&s.ID, &s.Reference, &s.CustomerID, &s.LocationID, &s.Status,
			&totalAmount, &paidAmount, &s.DueDate, &s.Notes, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		if s.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
			return nil, 0, err
		}
		if s.PaidAmount, err = decimal.NewFromString(paidAmount); err != nil {
			return nil, 0, err
		}
		sales = append(sales, s)
	}
	return sales, total, rows.Err()
}

func scanSaleOrder(ctx context.Context, q saleQuerier, id int64, forUpdate bool) (SaleOrder, error) {
	sql := `
		SELECT id, reference, customer_id, location_id, status, total_amount::text, COALESCE(notes, ''), created_at, confirmed_at
		FROM sale_orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var o SaleOrder
	var total string
	err := q.QueryRow(ctx, sql, id).
		Scan(&o.ID, &o.Reference, &o.CustomerID, &o.LocationID, &o.Status, &total, &o.Notes, &o.CreatedAt, &o.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SaleOrder{}, fmt.Errorf("%w: sale order %d", shared.ErrNotFound, id)
		}
		return SaleOrder{}, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return SaleOrder{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price::text, line_total::text
		FROM sale_order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return SaleOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SaleOrderItem
		var unit, line string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &unit, &line); err != nil {
			return SaleOrder{}, err
		}
		if item.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return SaleOrder{}, err
		}
		if item.LineTotal, err = decimal.NewFromString(line); err != nil {
			return SaleOrder{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *repository) GetOrder(ctx context.Context, id int64) (SaleOrder, error) {
	return scanSaleOrder(ctx, r.pool, id, false)
}

func (r *repository) ListOrders(ctx context.Context, status string, limit, offset int) ([]SaleOrder, int, error) {
	countSQL := `SELECT COUNT(*) FROM sale_orders WHERE 1=1`
	dataSQL := `
		SELECT id, reference, customer_id, location_id, status, total_amount::text, COALESCE(notes, ''), created_at, confirmed_at
		FROM sale_orders WHERE 1=1`
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
	var orders []SaleOrder
	for rows.Next() {
		var o SaleOrder
		var totalAmount string
		if err := rows.Scan(&o.ID, &o.Reference, &o.CustomerID, &o.LocationID, &o.Status,
			&totalAmount, &o.Notes, &o.CreatedAt, &o.ConfirmedAt); err != nil {
			return nil, 0, err
		}
		if o.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) MarkOverdue(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE sales SET status = $1
		WHERE status = $2 AND due_date IS NOT NULL AND due_date < $3
		RETURNING id`, SaleOverdue, SaleSent, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	return shared.NextDocumentNumber(ctx, r.tx, prefix)
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sales (reference, customer_id, location_id, status, total_amount, paid_amount, due_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		s.Reference, s.CustomerID, s.LocationID, s.Status,
		s.TotalAmount.String(), s.PaidAmount.String(), s.DueDate, s.Notes).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}
	for i := range s.Items {
		s.Items[i].SaleID = s.ID
		inserted, err := r.InsertItem(ctx, s.Items[i])
		if err != nil {
			return Sale{}, err
		}
		s.Items[i] = inserted
	}
	return s, nil
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	return scanSale(ctx, r.tx, id, true)
}

func (r *txRepository) InsertItem(ctx context.Context, item SaleItem) (SaleItem, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice.String(), item.LineTotal.String()).
		Scan(&item.ID)
	if err != nil {
		return SaleItem{}, fmt.Errorf("insert sale item: %w", err)
	}
	return item, nil
}

func (r *txRepository) UpdateItem(ctx context.Context, item SaleItem) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE sale_items SET quantity = $3, unit_price = $4, line_total = $5
		WHERE id = $1 AND sale_id = $2`,
		item.ID, item.SaleID, item.Quantity, item.UnitPrice.String(), item.LineTotal.String())
	if err != nil {
		return fmt.Errorf("update sale item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale item %d", shared.ErrNotFound, item.ID)
	}
	return nil
}

func (r *txRepository) ListItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	return listItems(ctx, r.tx, saleID)
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO payments (sale_id, reference, amount, method, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.SaleID, p.Reference, p.Amount.String(), p.Method, p.PaidAt).
		Scan(&p.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

func (r *txRepository) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	return listPayments(ctx, r.tx, saleID)
}

func (r *txRepository) UpdateSale(ctx context.Context, s Sale) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE sales
		SET status = $2, total_amount = $3, paid_amount = $4, due_date = $5
		WHERE id = $1`,
		s.ID, s.Status, s.TotalAmount.String(), s.PaidAmount.String(), s.DueDate)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %d", shared.ErrNotFound, s.ID)
	}
	return nil
}

func (r *txRepository) InsertOrder(ctx context.Context, o SaleOrder) (SaleOrder, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sale_orders (reference, customer_id, location_id, status, total_amount, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		o.Reference, o.CustomerID, o.LocationID, o.Status, o.TotalAmount.String(), o.Notes).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return SaleOrder{}, fmt.Errorf("insert sale order: %w", err)
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO sale_order_items (order_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			o.ID, o.Items[i].ProductID, o.Items[i].Quantity,
			o.Items[i].UnitPrice.String(), o.Items[i].LineTotal.String()).
			Scan(&o.Items[i].ID)
		if err != nil {
			return SaleOrder{}, fmt.Errorf("insert sale order item: %w", err)
		}
	}
	return o, nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (SaleOrder, error) {
	return scanSaleOrder(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateOrder(ctx context.Context, o SaleOrder) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE sale_orders SET status = $2, confirmed_at = $3
		WHERE id = $1`, o.ID, o.Status, o.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("update sale order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale order %d", shared.ErrNotFound, o.ID)
	}
	return nil
}

func (r *txRepository) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	return stock.GetForUpdate(ctx, r.tx, productID, locationID)
}

func (r *txRepository) SaveStock(ctx context.Context, level stock.Level) error {
	return stock.Save(ctx, r.tx, level)
}
