package customers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/shared"
)

type memoryRepo struct {
	customers   map[int64]Customer
	supplies    map[int64][]SupplyEntry
	payments    map[int64][]CustomerPayment
	adjustments map[int64][]BalanceAdjustment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers:   make(map[int64]Customer),
		supplies:    make(map[int64][]SupplyEntry),
		payments:    make(map[int64][]CustomerPayment),
		adjustments: make(map[int64][]BalanceAdjustment),
	}
}

func (m *memoryRepo) snapshot() *memoryRepo {
	c := newMemoryRepo()
	for k, v := range m.customers {
		c.customers[k] = v
	}
	for k, v := range m.supplies {
		c.supplies[k] = append([]SupplyEntry(nil), v...)
	}
	for k, v := range m.payments {
		c.payments[k] = append([]CustomerPayment(nil), v...)
	}
	for k, v := range m.adjustments {
		c.adjustments[k] = append([]BalanceAdjustment(nil), v...)
	}
	c.nextID = m.nextID
	return c
}

// WithTx mimics rollback by restoring the pre-transaction state on error.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := m.snapshot()
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		*m = *saved
		return err
	}
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) GetLedger(ctx context.Context, id int64) (Ledger, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return Ledger{}, err
	}
	ledger := Ledger{Customer: c}
	for _, e := range m.supplies[id] {
		ledger.Supplies = append(ledger.Supplies, e)
		ledger.TotalSupplied = ledger.TotalSupplied.Add(e.Amount)
	}
	for _, p := range m.payments[id] {
		ledger.Payments = append(ledger.Payments, p)
		ledger.TotalPaid = ledger.TotalPaid.Add(p.Amount)
	}
	ledger.Adjustments = m.adjustments[id]
	return ledger, nil
}

func (m *memoryRepo) List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Insert(ctx context.Context, c Customer) (Customer, error) {
	t.repo.nextID++
	c.ID = t.repo.nextID
	t.repo.customers[c.ID] = c
	return c, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Customer, error) {
	c, ok := t.repo.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
	}
	return c, nil
}

func (t *memoryTx) UpdateBalance(ctx context.Context, c Customer) error {
	stored, ok := t.repo.customers[c.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Balance = c.Balance
	t.repo.customers[c.ID] = stored
	return nil
}

func (t *memoryTx) InsertSupply(ctx context.Context, e SupplyEntry) (SupplyEntry, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.supplies[e.CustomerID] = append(t.repo.supplies[e.CustomerID], e)
	return e, nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p CustomerPayment) (CustomerPayment, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.payments[p.CustomerID] = append(t.repo.payments[p.CustomerID], p)
	return p, nil
}

func (t *memoryTx) InsertAdjustment(ctx context.Context, a BalanceAdjustment) (BalanceAdjustment, error) {
	t.repo.nextID++
	a.ID = t.repo.nextID
	t.repo.adjustments[a.CustomerID] = append(t.repo.adjustments[a.CustomerID], a)
	return a, nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil)
}

func TestSupplyCreditsBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	customer, err := svc.Create(ctx, CreateCustomerInput{Name: "Amina Stores"})
	require.NoError(t, err)
	require.True(t, customer.Balance.IsZero())

	customer, err = svc.RecordSupply(ctx, customer.ID, SupplyInput{Amount: "150.00", Note: "maize flour"})
	require.NoError(t, err)
	require.Equal(t, "150", customer.Balance.String())

	customer, err = svc.RecordSupply(ctx, customer.ID, SupplyInput{Amount: "49.50"})
	require.NoError(t, err)
	require.Equal(t, "199.5", customer.Balance.String())

	ledger, err := svc.GetLedger(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, ledger.Supplies, 2)
	require.Equal(t, "199.5", ledger.TotalSupplied.String())
}

func TestPaymentDebitsBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	customer, err := svc.Create(ctx, CreateCustomerInput{Name: "Amina Stores"})
	require.NoError(t, err)
	_, err = svc.RecordSupply(ctx, customer.ID, SupplyInput{Amount: "200.00"})
	require.NoError(t, err)

	customer, err = svc.RecordPayment(ctx, customer.ID, PaymentInput{Amount: "75.00", Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, "125", customer.Balance.String())

	ledger, err := svc.GetLedger(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, "75", ledger.TotalPaid.String())
}

func TestPaymentBeyondBalanceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	customer, err := svc.Create(ctx, CreateCustomerInput{Name: "Amina Stores"})
	require.NoError(t, err)
	_, err = svc.RecordSupply(ctx, customer.ID, SupplyInput{Amount: "50.00"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, customer.ID, PaymentInput{Amount: "60.00", Method: "cash"})
	require.ErrorIs(t, err, shared.ErrOverpayment)

	// The rejected payment leaves no trace.
	customer, err = svc.Get(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, "50", customer.Balance.String())
	require.Empty(t, repo.payments[customer.ID])
}

func TestAdjustmentKinds(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	customer, err := svc.Create(ctx, CreateCustomerInput{Name: "Amina Stores"})
	require.NoError(t, err)

	customer, err = svc.Adjust(ctx, customer.ID, AdjustmentInput{Kind: "credit", Amount: "30.00", Reason: "opening balance"})
	require.NoError(t, err)
	require.Equal(t, "30", customer.Balance.String())

	customer, err = svc.Adjust(ctx, customer.ID, AdjustmentInput{Kind: "debit", Amount: "10.00", Reason: "write-off"})
	require.NoError(t, err)
	require.Equal(t, "20", customer.Balance.String())

	_, err = svc.Adjust(ctx, customer.ID, AdjustmentInput{Kind: "debit", Amount: "100.00", Reason: "bad"})
	require.ErrorIs(t, err, shared.ErrOverpayment)
	require.Len(t, repo.adjustments[customer.ID], 2)
}

func TestNegativeSupplyRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	customer, err := svc.Create(ctx, CreateCustomerInput{Name: "Amina Stores"})
	require.NoError(t, err)

	_, err = svc.RecordSupply(ctx, customer.ID, SupplyInput{Amount: "-5.00"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
