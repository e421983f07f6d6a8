package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/platform/db"
	"github.com/tebahq/teba/internal/shared"
)

// Repository is the read side plus the transaction boundary.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Customer, error)
	GetLedger(ctx context.Context, id int64) (Ledger, error)
	List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error)
}

// TxRepository is the write side, bound to one transaction. A ledger entry
// and its balance mutation commit or roll back together.
type TxRepository interface {
	Insert(ctx context.Context, c Customer) (Customer, error)
	GetForUpdate(ctx context.Context, id int64) (Customer, error)
	UpdateBalance(ctx context.Context, c Customer) error
	InsertSupply(ctx context.Context, e SupplyEntry) (SupplyEntry, error)
	InsertPayment(ctx context.Context, p CustomerPayment) (CustomerPayment, error)
	InsertAdjustment(ctx context.Context, a BalanceAdjustment) (BalanceAdjustment, error)
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

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var balance string
	err := row.Scan(&c.ID, &c.Name, &c.LocationID, &c.TIN, &c.Phone, &balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, err
	}
	if c.Balance, err = decimal.NewFromString(balance); err != nil {
		return Customer{}, err
	}
	return c, nil
}

const customerColumns = `id, name, location_id, COALESCE(tin, ''), COALESCE(phone, ''), balance::text, created_at`

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) GetLedger(ctx context.Context, id int64) (Ledger, error) {
	customer, err := r.Get(ctx, id)
	if err != nil {
		return Ledger{}, err
	}
	ledger := Ledger{
		Customer:      customer,
		TotalSupplied: decimal.Zero,
		TotalPaid:     decimal.Zero,
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, amount::text, COALESCE(note, ''), supplied_at
		FROM supply_history WHERE customer_id = $1 ORDER BY supplied_at DESC`, id)
	if err != nil {
		return Ledger{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e SupplyEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.CustomerID, &amount, &e.Note, &e.SuppliedAt); err != nil {
			return Ledger{}, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return Ledger{}, err
		}
		ledger.Supplies = append(ledger.Supplies, e)
		ledger.TotalSupplied = ledger.TotalSupplied.Add(e.Amount)
	}
	if err := rows.Err(); err != nil {
		return Ledger{}, err
	}

	payRows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, amount::text, method, paid_at
		FROM customer_payments WHERE customer_id = $1 ORDER BY paid_at DESC`, id)
	if err != nil {
		return Ledger{}, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p CustomerPayment
		var amount string
		if err := payRows.Scan(&p.ID, &p.CustomerID, &amount, &p.Method, &p.PaidAt); err != nil {
			return Ledger{}, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return Ledger{}, err
		}
		ledger.Payments = append(ledger.Payments, p)
		ledger.TotalPaid = ledger.TotalPaid.Add(p.Amount)
	}
	if err := payRows.Err(); err != nil {
		return Ledger{}, err
	}

	adjRows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, kind, amount::text, COALESCE(reason, ''), created_at
		FROM balance_adjustments WHERE customer_id = $1 ORDER BY created_at DESC`, id)
	if err != nil {
		return Ledger{}, err
	}
	defer adjRows.Close()
	for adjRows.Next() {
		var a BalanceAdjustment
		var amount string
		if err := adjRows.Scan(&a.ID, &a.CustomerID, &a.Kind, &amount, &a.Reason, &a.CreatedAt); err != nil {
			return Ledger{}, err
		}
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return Ledger{}, err
		}
		ledger.Adjustments = append(ledger.Adjustments, a)
	}
	return ledger, adjRows.Err()
}

func (r *repository) List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error) {
	countSQL := `SELECT COUNT(*) FROM customers WHERE 1=1`
	dataSQL := `SELECT ` + customerColumns + ` FROM customers WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		countSQL += ` AND name ILIKE $1`
		dataSQL += ` AND name ILIKE $1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	dataSQL += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		var balance string
		if err := rows.Scan(&c.ID, &c.Name, &c.LocationID, &c.TIN, &c.Phone, &balance, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		if c.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, c Customer) (Customer, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO customers (name, location_id, tin, phone, balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		c.Name, c.LocationID, c.TIN, c.Phone, c.Balance.String()).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateBalance(ctx context.Context, c Customer) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE customers SET balance = $2 WHERE id = $1`, c.ID, c.Balance.String())
	if err != nil {
		return fmt.Errorf("update customer balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d", shared.ErrNotFound, c.ID)
	}
	return nil
}

func (r *txRepository) InsertSupply(ctx context.Context, e SupplyEntry) (SupplyEntry, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO supply_history (customer_id, amount, note, supplied_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		e.CustomerID, e.Amount.String(), e.Note, e.SuppliedAt).
		Scan(&e.ID)
	if err != nil {
		return SupplyEntry{}, fmt.Errorf("insert supply entry: %w", err)
	}
	return e, nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p CustomerPayment) (CustomerPayment, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO customer_payments (customer_id, amount, method, paid_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		p.CustomerID, p.Amount.String(), p.Method, p.PaidAt).
		Scan(&p.ID)
	if err != nil {
		return CustomerPayment{}, fmt.Errorf("insert customer payment: %w", err)
	}
	return p, nil
}

func (r *txRepository) InsertAdjustment(ctx context.Context, a BalanceAdjustment) (BalanceAdjustment, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO balance_adjustments (customer_id, kind, amount, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		a.CustomerID, a.Kind, a.Amount.String(), a.Reason).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return BalanceAdjustment{}, fmt.Errorf("insert balance adjustment: %w", err)
	}
	return a, nil
}
