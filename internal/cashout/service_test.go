package cashout

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/shared"
)

type dayKey struct {
	date       string
	locationID int64
}

type memoryRepo struct {
	cashouts     map[dayKey]Cashout
	expenses     []Expense
	expenseNames map[string]int64
	locations    []LocationRef
	payments     map[dayKey]decimal.Decimal
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		cashouts:     make(map[dayKey]Cashout),
		expenseNames: make(map[string]int64),
		payments:     make(map[dayKey]decimal.Decimal),
	}
}

func keyFor(date time.Time, locationID *int64) dayKey {
	k := dayKey{date: date.Format("2006-01-02")}
	if locationID != nil {
		k.locationID = *locationID
	}
	return k
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Cashout, error) {
	for _, c := range m.cashouts {
		if c.ID == id {
			return c, nil
		}
	}
	return Cashout{}, shared.ErrNotFound
}

func (m *memoryRepo) GetForDay(ctx context.Context, date time.Time, locationID *int64) (Cashout, error) {
	c, ok := m.cashouts[keyFor(date, locationID)]
	if !ok {
		return Cashout{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) List(ctx context.Context, from, to time.Time, limit, offset int) ([]Cashout, int, error) {
	var out []Cashout
	for _, c := range m.cashouts {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListExpenses(ctx context.Context, from, to time.Time, limit, offset int) ([]Expense, int, error) {
	return m.expenses, len(m.expenses), nil
}

func (m *memoryRepo) ListExpenseNames(ctx context.Context) ([]ExpenseName, error) {
	var out []ExpenseName
	for name, id := range m.expenseNames {
		out = append(out, ExpenseName{ID: id, Name: name})
	}
	return out, nil
}

func (m *memoryRepo) Locations(ctx context.Context) ([]LocationRef, error) {
	return m.locations, nil
}

func (m *memoryRepo) PaymentsForDay(ctx context.Context, date time.Time, locationID int64) (decimal.Decimal, error) {
	if paid, ok := m.payments[keyFor(date, &locationID)]; ok {
		return paid, nil
	}
	return decimal.Zero, nil
}

func (m *memoryRepo) ExpensesForDay(ctx context.Context, date time.Time, locationName string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range m.expenses {
		if e.Date.Equal(date) && e.Location == locationName {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Upsert(ctx context.Context, c Cashout) (Cashout, error) {
	key := keyFor(c.Date, c.LocationID)
	if existing, ok := t.repo.cashouts[key]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		t.repo.nextID++
		c.ID = t.repo.nextID
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()
	t.repo.cashouts[key] = c
	return c, nil
}

func (t *memoryTx) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.expenses = append(t.repo.expenses, e)
	return e, nil
}

func (t *memoryTx) InsertExpenseName(ctx context.Context, name string) (ExpenseName, error) {
	if id, ok := t.repo.expenseNames[name]; ok {
		return ExpenseName{ID: id, Name: name}, nil
	}
	t.repo.nextID++
	t.repo.expenseNames[name] = t.repo.nextID
	return ExpenseName{ID: t.repo.nextID, Name: name}, nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil)
}

func fullInput() UpsertInput {
	return UpsertInput{
		Date:            "2026-08-24",
		OpeningBalance:  "100.00",
		Paid:            "400.00",
		CustomerBalance: "150.00",
		Wholesale:       "250.00",
		Debt:            "50.00",
		Cash:            "500.00",
		Accounts:        "120.00",
		Expenses:        "80.00",
	}
}

func TestUpsertDerivedFigures(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	summary, err := svc.Upsert(context.Background(), fullInput())
	require.NoError(t, err)

	// total sales = 400 + 150 + 250, total cashout = 50 + 500 + 120 + 80.
	require.Equal(t, "800", summary.TotalSales.String())
	require.Equal(t, "750", summary.TotalCash.String())
	require.Equal(t, "50", summary.Difference.String())
	// less/excess nets out the opening balance: 50 - 100.
	require.Equal(t, "-50", summary.LessExcess.String())
}

func TestUpsertReplacesSameDay(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, fullInput())
	require.NoError(t, err)

	input := fullInput()
	input.Cash = "550.00"
	second, err := svc.Upsert(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "550", second.Cash.String())
	require.Len(t, repo.cashouts, 1)
}

func TestUpsertRejectsNegativeFigure(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	input := fullInput()
	input.Cash = "-1.00"
	_, err := svc.Upsert(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecordExpenseRegistersName(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	expense, err := svc.RecordExpense(ctx, ExpenseInput{
		Name:   "Fuel",
		Amount: "45.00",
		Date:   "2026-08-24",
	})
	require.NoError(t, err)
	require.Equal(t, "45", expense.Amount.String())

	names, err := svc.ListExpenseNames(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.Equal(t, "Fuel", names[0].Name)

	// The same name is not duplicated.
	_, err = svc.RecordExpense(ctx, ExpenseInput{Name: "Fuel", Amount: "12.00", Date: "2026-08-24"})
	require.NoError(t, err)
	names, err = svc.ListExpenseNames(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)
}

func TestSnapshotPrefillsFromKnownFigures(t *testing.T) {
	repo := newMemoryRepo()
	repo.locations = []LocationRef{{ID: 1, Name: "Main"}, {ID: 2, Name: "Depot"}}
	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	repo.payments[keyFor(date, &repo.locations[0].ID)] = decimal.RequireFromString("320.00")
	repo.expenses = append(repo.expenses, Expense{
		Name: "Fuel", Amount: decimal.RequireFromString("40.00"), Location: "Main", Date: date,
	})
	svc := newTestService(repo)

	written, err := svc.Snapshot(context.Background(), date)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	main, err := repo.GetForDay(context.Background(), date, &repo.locations[0].ID)
	require.NoError(t, err)
	require.Equal(t, "320", main.Paid.String())
	require.Equal(t, "40", main.Expenses.String())

	depot, err := repo.GetForDay(context.Background(), date, &repo.locations[1].ID)
	require.NoError(t, err)
	require.True(t, depot.Paid.IsZero())
}

func TestSnapshotPreservesEnteredFigures(t *testing.T) {
	repo := newMemoryRepo()
	repo.locations = []LocationRef{{ID: 1, Name: "Main"}}
	svc := newTestService(repo)
	ctx := context.Background()

	input := fullInput()
	locationID := int64(1)
	input.LocationID = &locationID
	_, err := svc.Upsert(ctx, input)
	require.NoError(t, err)

	date, _ := time.Parse("2006-01-02", input.Date)
	repo.payments[keyFor(date, &locationID)] = decimal.RequireFromString("410.00")

	_, err = svc.Snapshot(ctx, date)
	require.NoError(t, err)

	row, err := repo.GetForDay(ctx, date, &locationID)
	require.NoError(t, err)
	require.Equal(t, "410", row.Paid.String())
	// Manually entered figures survive the refresh.
	require.Equal(t, "500", row.Cash.String())
	require.Equal(t, "100", row.OpeningBalance.String())
}
