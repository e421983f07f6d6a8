package procurement

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
	purchases map[int64]Purchase
	orders    map[int64]PurchaseOrder
	levels    map[[2]int64]stock.Level
	sequences map[string]int64
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		purchases: make(map[int64]Purchase),
		orders:    make(map[int64]PurchaseOrder),
		levels:    make(map[[2]int64]stock.Level),
		sequences: make(map[string]int64),
	}
}

func (m *memoryRepo) snapshot() (map[int64]Purchase, map[int64]PurchaseOrder, map[[2]int64]stock.Level, map[string]int64, int64) {
	purchases := make(map[int64]Purchase, len(m.purchases))
	for k, v := range m.purchases {
		purchases[k] = v
	}
	orders := make(map[int64]PurchaseOrder, len(m.orders))
	for k, v := range m.orders {
		orders[k] = v
	}
	levels := make(map[[2]int64]stock.Level, len(m.levels))
	for k, v := range m.levels {
		levels[k] = v
	}
	sequences := make(map[string]int64, len(m.sequences))
	for k, v := range m.sequences {
		sequences[k] = v
	}
	return purchases, orders, levels, sequences, m.nextID
}

// WithTx mimics rollback by restoring the pre-transaction state on error.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	purchases, orders, levels, sequences, nextID := m.snapshot()
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.purchases, m.orders, m.levels, m.sequences, m.nextID = purchases, orders, levels, sequences, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, ok := m.purchases[id]
	if !ok {
		return Purchase{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error) {
	var out []Purchase
	for _, p := range m.purchases {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return o, nil
}

func (m *memoryRepo) ListOrders(ctx context.Context, status string, limit, offset int) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextNumber(ctx context.Context, prefix string) (string, error) {
	t.repo.sequences[prefix]++
	return shared.FormatDocumentNumber(prefix, time.Now().UTC().Year(), t.repo.sequences[prefix]), nil
}

func (t *memoryTx) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	p.CreatedAt = time.Now()
	for i := range p.Items {
		t.repo.nextID++
		p.Items[i].ID = t.repo.nextID
		p.Items[i].PurchaseID = p.ID
	}
	t.repo.purchases[p.ID] = p
	return p, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o PurchaseOrder) (PurchaseOrder, error) {
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

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	return o, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o PurchaseOrder) error {
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

func TestCreatePurchaseCreditsStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, CreatePurchaseInput{
		LocationID: 1,
		Items: []ItemInput{
			{ProductID: 10, Quantity: 5, UnitCost: "2.50"},
			{ProductID: 11, Quantity: 3, UnitCost: "4.00"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, purchase.Reference)
	require.Equal(t, "24.5", purchase.TotalCost.String())

	require.EqualValues(t, 5, repo.levels[[2]int64{10, 1}].Quantity)
	require.EqualValues(t, 3, repo.levels[[2]int64{11, 1}].Quantity)
}

func TestCreatePurchaseRequiresItems(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreatePurchase(context.Background(), CreatePurchaseInput{LocationID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestReceiveOrderCreditsOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 8, UnitCost: "1.00"}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderDraft, order.Status)
	// Drafts hold no stock.
	require.EqualValues(t, 0, repo.levels[[2]int64{10, 1}].Quantity)

	order, err = svc.MarkOrdered(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderOrdered, order.Status)

	order, err = svc.ReceiveOrder(ctx, order.ID, "")
	require.NoError(t, err)
	require.Equal(t, OrderReceived, order.Status)
	require.NotNil(t, order.ReceivedAt)
	require.EqualValues(t, 8, repo.levels[[2]int64{10, 1}].Quantity)

	// Receiving again must not double-credit.
	_, err = svc.ReceiveOrder(ctx, order.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.EqualValues(t, 8, repo.levels[[2]int64{10, 1}].Quantity)
}

func TestReceiveDraftOrderFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 2, UnitCost: "1.00"}},
	})
	require.NoError(t, err)

	_, err = svc.ReceiveOrder(ctx, order.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.EqualValues(t, 0, repo.levels[[2]int64{10, 1}].Quantity)
}

func TestCancelReceivedOrderFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 2, UnitCost: "1.00"}},
	})
	require.NoError(t, err)
	_, err = svc.MarkOrdered(ctx, order.ID)
	require.NoError(t, err)
	_, err = svc.ReceiveOrder(ctx, order.ID, "")
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelOrderedOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		LocationID: 1,
		Items:      []ItemInput{{ProductID: 10, Quantity: 2, UnitCost: "1.00"}},
	})
	require.NoError(t, err)
	_, err = svc.MarkOrdered(ctx, order.ID)
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCancelled, cancelled.Status)
	require.EqualValues(t, 0, repo.levels[[2]int64{10, 1}].Quantity)
}
