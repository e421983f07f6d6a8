package sales

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
)

type memoryRepo struct {
	sales     map[int64]Sale
	items     map[int64][]SaleItem
	payments  map[int64][]Payment
	orders    map[int64]SaleOrder
	levels    map[[2]int64]stock.Level
	sequences map[string]int64
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sales:     make(map[int64]Sale),
		items:     make(map[int64][]SaleItem),
		payments:  make(map[int64][]Payment),
		orders:    make(map[int64]SaleOrder),
		levels:    make(map[[2]int64]stock.Level),
		sequences: make(map[string]int64),
	}
}

func (m *memoryRepo) snapshot() *memoryRepo {
	c := newMemoryRepo()
	for k, v := range m.sales {
		c.sales[k] = v
	}
	for k, v := range m.items {
		c.items[k] = append([]SaleItem(nil), v...)
	}
	for k, v := range m.payments {
		c.payments[k] = append([]Payment(nil), v...)
	}
	for k, v := range m.orders {
		c.orders[k] = v
	}
	for k, v := range m.levels {
		c.levels[k] = v
	}
	for k, v := range m.sequences {
		c.sequences[k] = v
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

func (m *memoryRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	s, ok := m.sales[id]
	if !ok {
		return Sale{}, shared.ErrNotFound
	}
	s.Items = m.items[id]
	s.Payments = m.payments[id]
	return s, nil
}

func (m *memoryRepo) ListSales(ctx context.Context, status string, limit, offset int) ([]Sale, int, error) {
	var out []Sale
	for _, s := range m.sales {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetOrder(ctx context.Context, id int64) (SaleOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return SaleOrder{}, shared.ErrNotFound
	}
	return o, nil
}

func (m *memoryRepo) ListOrders(ctx context.Context, status string, limit, offset int) ([]SaleOrder, int, error) {
	var out []SaleOrder
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) MarkOverdue(ctx context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	for id, s := range m.sales {
		if s.Status == SaleSent && s.DueDate != nil && s.DueDate.Before(asOf) {
			s.Status = SaleOverdue
			m.sales[id] = s
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextNumber(ctx context.Context, prefix string) (string, error) {
	t.repo.sequences[prefix]++
	return shared.FormatDocumentNumber(prefix, time.Now().UTC().Year(), t.repo.sequences[prefix]), nil
}

func (t *memoryTx) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	t.repo.nextID++
	s.ID = t.repo.nextID
	s.CreatedAt = time.Now()
	for i := range s.Items {
		t.repo.nextID++
		s.Items[i].ID = t.repo.nextID
		s.Items[i].SaleID = s.ID
	}
	t.repo.items[s.ID] = append([]SaleItem(nil), s.Items...)
	stored := s
	stored.Items = nil
	stored.Payments = nil
	t.repo.sales[s.ID] = stored
	return s, nil
}

func (t *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	s, ok := t.repo.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	s.Items = t.repo.items[id]
	s.Payments = t.repo.payments[id]
	return s, nil
}

func (t *memoryTx) InsertItem(ctx context.Context, item SaleItem) (SaleItem, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.items[item.SaleID] = append(t.repo.items[item.SaleID], item)
	return item, nil
}

func (t *memoryTx) UpdateItem(ctx context.Context, item SaleItem) error {
	items := t.repo.items[item.SaleID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return nil
		}
	}
	return fmt.Errorf("%w: sale item %d", shared.ErrNotFound, item.ID)
}

func (t *memoryTx) ListItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	return t.repo.items[saleID], nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.payments[p.SaleID] = append(t.repo.payments[p.SaleID], p)
	return p, nil
}

func (t *memoryTx) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	return t.repo.payments[saleID], nil
}

func (t *memoryTx) UpdateSale(ctx context.Context, s Sale) error {
	if _, ok := t.repo.sales[s.ID]; !ok {
		return shared.ErrNotFound
	}
	stored := s
	stored.Items = nil
	stored.Payments = nil
	t.repo.sales[s.ID] = stored
	return nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o SaleOrder) (SaleOrder, error) {
	t.repo.nextID++
	o.ID = t.repo.nextID
	o.CreatedAt = time.Now()
	for i := range o.Items {
		t.repo.nextID++
		o.Items[i].ID = t.repo.nextID
		o.Items[i].OrderID = o.ID
	}
	t.repo.orders[o.ID] = o
	return o, nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (SaleOrder, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return SaleOrder{}, fmt.Errorf("%w: sale order %d", shared.ErrNotFound, id)
	}
	return o, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o SaleOrder) error {
	if _, ok := t.repo.orders[o.ID]; !ok {
		return shared.ErrNotFound
	}
	t.repo.orders[o.ID] = o
	return nil
}

func (t *memoryTx) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	key := [2]int64{productID, locationID}
	level, ok := t.repo.levels[key]
	if !ok {
		level = stock.Level{ProductID: productID, LocationID: locationID}
		t.repo.levels[key] = level
	}
	return level, nil
}

func (t *memoryTx) SaveStock(ctx context.Context, level stock.Level) error {
	t.repo.levels[[2]int64{level.ProductID, level.LocationID}] = level
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil, nil)
}

func TestSaleCreationDoesNotTouchStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 3, UnitPrice: "5.00"}},
	})
	require.NoError(t, err)
	require.Equal(t, SaleDraft, sale.Status)
	require.Equal(t, "15", sale.TotalAmount.String())
	require.Empty(t, repo.levels)
}

func TestItemRecomputesTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.CreateSale(ctx, CreateSaleInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 2, UnitPrice: "10.00"}},
	})
	require.NoError(t, err)

	sale, err = svc.AddItem(ctx, sale.ID, ItemInput{ProductID: 11, Quantity: 1, UnitPrice: "7.50"})
	require.NoError(t, err)
	require.Equal(t, "27.5", sale.TotalAmount.String())

	// Rewriting the first line re-sums from all items, not incrementally.
	sale, err = svc.UpdateItem(ctx, sale.ID, sale.Items[0].ID, ItemInput{ProductID: 10, Quantity: 4, UnitPrice: "10.00"})
	require.NoError(t, err)
	require.Equal(t, "47.5", sale.TotalAmount.String())
}

func TestPaymentSequenceDrivesStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.CreateSale(ctx, CreateSaleInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 10, UnitPrice: "10.00"}},
	})
	require.NoError(t, err)
	require.Equal(t, "100", sale.TotalAmount.String())
	require.Equal(t, SaleDraft, sale.Status)

	sale, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "40", Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, "40", sale.PaidAmount.String())
	require.Equal(t, SaleSent, sale.Status)

	sale, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "30", Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, "70", sale.PaidAmount.String())
	require.Equal(t, SaleSent, sale.Status)

	sale, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "10", Method: "card"})
	require.NoError(t, err)
	// Recomputed from the full payment set, not incrementally.
	require.Equal(t, "80", sale.PaidAmount.String())
	require.Equal(t, SaleSent, sale.Status)

	sale, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "20", Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, "100", sale.PaidAmount.String())
	require.Equal(t, SalePaid, sale.Status)
}

func TestOverpaymentRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.CreateSale(ctx, CreateSaleInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 1, UnitPrice: "50.00"}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "40", Method: "cash"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "20", Method: "cash"})
	require.ErrorIs(t, err, shared.ErrOverpayment)

	// The rejected payment is not persisted.
	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, "40", stored.PaidAmount.String())
	require.Len(t, stored.Payments, 1)
}

func TestConfirmOrderDebitsAllLines(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{10, 1}] = stock.Level{ProductID: 10, LocationID: 1, Quantity: 10}
	repo.levels[[2]int64{11, 1}] = stock.Level{ProductID: 11, LocationID: 1, Quantity: 3}
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items: []ItemInput{
			{ProductID: 10, Quantity: 5, UnitPrice: "2.00"},
			{ProductID: 11, Quantity: 3, UnitPrice: "4.00"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, OrderDraft, order.Status)

	order, err = svc.ConfirmOrder(ctx, order.ID, "")
	require.NoError(t, err)
	require.Equal(t, OrderConfirmed, order.Status)
	require.EqualValues(t, 5, repo.levels[[2]int64{10, 1}].Quantity)
	require.EqualValues(t, 0, repo.levels[[2]int64{11, 1}].Quantity)
}

func TestConfirmOrderInsufficientLeavesStockUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{10, 1}] = stock.Level{ProductID: 10, LocationID: 1, Quantity: 10}
	repo.levels[[2]int64{11, 1}] = stock.Level{ProductID: 11, LocationID: 1, Quantity: 2}
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items: []ItemInput{
			{ProductID: 10, Quantity: 5, UnitPrice: "2.00"},
			{ProductID: 11, Quantity: 5, UnitPrice: "4.00"},
		},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmOrder(ctx, order.ID, "")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Neither line was debited and the order stays draft.
	require.EqualValues(t, 10, repo.levels[[2]int64{10, 1}].Quantity)
	require.EqualValues(t, 2, repo.levels[[2]int64{11, 1}].Quantity)
	stored, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderDraft, stored.Status)
}

func TestConfirmOrderTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{10, 1}] = stock.Level{ProductID: 10, LocationID: 1, Quantity: 10}
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 4, UnitPrice: "1.00"}},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmOrder(ctx, order.ID, "")
	require.NoError(t, err)
	_, err = svc.ConfirmOrder(ctx, order.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.EqualValues(t, 6, repo.levels[[2]int64{10, 1}].Quantity)
}

func TestFlagOverdue(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	due := time.Now().Add(-48 * time.Hour)
	sale, err := svc.CreateSale(ctx, CreateSaleInput{
		LocationID: 1,
		DueDate:    &due,
		Items:      []ItemInput{{ProductID: 10, Quantity: 1, UnitPrice: "10.00"}},
	})
	require.NoError(t, err)
	_, err = svc.SendSale(ctx, sale.ID)
	require.NoError(t, err)

	ids, err := svc.FlagOverdue(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []int64{sale.ID}, ids)

	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, SaleOverdue, stored.Status)
}

func TestCancelPaidSaleFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	sale, err := svc.CreateSale(ctx, CreateSaleInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 1, UnitPrice: "10.00"}},
	})
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, sale.ID, PaymentInput{Amount: "10", Method: "cash"})
	require.NoError(t, err)

	_, err = svc.CancelSale(ctx, sale.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}
