package cashout

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
)

// Repository is the read side plus the transaction boundary.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Cashout, error)
	GetForDay(ctx context.Context, date time.Time, locationID *int64) (Cashout, error)
	List(ctx context.Context, from, to time.Time, limit, offset int) ([]Cashout, int, error)
	ListExpenses(ctx context.Context, from, to time.Time, limit, offset int) ([]Expense, int, error)
	ListExpenseNames(ctx context.Context) ([]ExpenseName, error)
	Locations(ctx context.Context) ([]LocationRef, error)
	PaymentsForDay(ctx context.Context, date time.Time, locationID int64) (decimal.Decimal, error)
	ExpensesForDay(ctx context.Context, date time.Time, locationName string) (decimal.Decimal, error)
}

// TxRepository is the write side, bound to one transaction.
type TxRepository interface {
	Upsert(ctx context.Context, c Cashout) (Cashout, error)
	InsertExpense(ctx context.Context, e Expense) (Expense, error)
	InsertExpenseName(ctx context.Context, name string) (ExpenseName, error)
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

const cashoutColumns = `id, date, location_id, opening_balance::text, paid::text,
	customer_balance::text, wholesale::text, debt::text, cash::text,
	accounts::text, expenses::text, COALESCE(notes, ''), created_at, updated_at`

func scanCashout(row pgx.Row) (Cashout, error) {
	var c Cashout
	var opening, paid, customer, wholesale, debt, cash, accounts, expenses string
	err := row.Scan(&c.ID, &c.Date, &c.LocationID, &opening, &paid, &customer,
		&wholesale, &debt, &cash, &accounts, &expenses, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cashout{}, shared.ErrNotFound
		}
		return Cashout{}, err
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&c.OpeningBalance, opening}, {&c.Paid, paid}, {&c.CustomerBalance, customer},
		{&c.Wholesale, wholesale}, {&c.Debt, debt}, {&c.Cash, cash},
		{&c.Accounts, accounts}, {&c.Expenses, expenses},
	} {
		if *pair.dst, err = decimal.NewFromString(pair.raw); err != nil {
			return Cashout{}, err
		}
	}
	return c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Cashout, error) {
	return scanCashout(r.pool.QueryRow(ctx,
		`SELECT `+cashoutColumns+` FROM cashouts WHERE id = $1`, id))
}

func (r *repository) GetForDay(ctx context.Context, date time.Time, locationID *int64) (Cashout, error) {
	if locationID == nil {
		return scanCashout(r.pool.QueryRow(ctx,
			`SELECT `+cashoutColumns+` FROM cashouts WHERE date = $1 AND location_id IS NULL`, date))
	}
	return scanCashout(r.pool.QueryRow(ctx,
		`SELECT `+cashoutColumns+` FROM cashouts WHERE date = $1 AND location_id = $2`, date, *locationID))
}

func (r *repository) List(ctx context.Context, from, to time.Time, limit, offset int) ([]Cashout, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cashouts WHERE date BETWEEN $1 AND $2`, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+cashoutColumns+` FROM cashouts
		WHERE date BETWEEN $1 AND $2
		ORDER BY date DESC, id DESC LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Cashout
	for rows.Next() {
		c, err := scanCashout(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) ListExpenses(ctx context.Context, from, to time.Time, limit, offset int) ([]Expense, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM expenses WHERE date BETWEEN $1 AND $2`, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(notes, ''), amount::text, COALESCE(location, ''), date
		FROM expenses WHERE date BETWEEN $1 AND $2
		ORDER BY date DESC, id DESC LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		var amount string
		if err := rows.Scan(&e.ID, &e.Name, &e.Notes, &amount, &e.Location, &e.Date); err != nil {
			return nil, 0, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *repository) ListExpenseNames(ctx context.Context) ([]ExpenseName, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM expense_names ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExpenseName
	for rows.Next() {
		var n ExpenseName
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// LocationRef is the slice of the locations table the snapshot needs.
type LocationRef struct {
	ID   int64
	Name string
}

func (r *repository) Locations(ctx context.Context) ([]LocationRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM locations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LocationRef
	for rows.Next() {
		var ref LocationRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *repository) PaymentsForDay(ctx context.Context, date time.Time, locationID int64) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)::text
		FROM payments p
		JOIN sales s ON s.id = p.sale_id
		WHERE p.paid_at::date = $1 AND s.location_id = $2`, date, locationID).Scan(&raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(raw)
}

func (r *repository) ExpensesForDay(ctx context.Context, date time.Time, locationName string) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM expenses WHERE date = $1 AND location = $2`, date, locationName).Scan(&raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(raw)
}

type txRepository struct {
	tx pgx.Tx
}

// Upsert writes the day's row for a location, keyed on (date, location_id).
func (r *txRepository) Upsert(ctx context.Context, c Cashout) (Cashout, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO cashouts (date, location_id, opening_balance, paid, customer_balance,
			wholesale, debt, cash, accounts, expenses, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (date, location_id) DO UPDATE SET
			opening_balance = EXCLUDED.opening_balance,
			paid = EXCLUDED.paid,
			customer_balance = EXCLUDED.customer_balance,
			wholesale = EXCLUDED.wholesale,
			debt = EXCLUDED.debt,
			cash = EXCLUDED.cash,
			accounts = EXCLUDED.accounts,
			expenses = EXCLUDED.expenses,
			notes = EXCLUDED.notes,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		c.Date, c.LocationID, c.OpeningBalance.String(), c.Paid.String(),
		c.CustomerBalance.String(), c.Wholesale.String(), c.Debt.String(),
		c.Cash.String(), c.Accounts.String(), c.Expenses.String(), c.Notes).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cashout{}, fmt.Errorf("upsert cashout: %w", err)
	}
	return c, nil
}

func (r *txRepository) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO expenses (name, notes, amount, location, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.Name, e.Notes, e.Amount.String(), e.Location, e.Date).
		Scan(&e.ID)
	if err != nil {
		return Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (r *txRepository) InsertExpenseName(ctx context.Context, name string) (ExpenseName, error) {
	var n ExpenseName
	err := r.tx.QueryRow(ctx, `
		INSERT INTO expense_names (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`, name).
		Scan(&n.ID, &n.Name)
	if err != nil {
		return ExpenseName{}, fmt.Errorf("insert expense name: %w", err)
	}
	return n, nil
}
