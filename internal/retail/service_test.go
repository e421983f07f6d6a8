package retail

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
)

type memoryRepo struct {
	sales        []Sale
	retailLevels map[[2]int64]Level
	stockLevels  map[[2]int64]stock.Level
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		retailLevels: make(map[[2]int64]Level),
		stockLevels:  make(map[[2]int64]stock.Level),
	}
}

func (m *memoryRepo) snapshot() *memoryRepo {
	c := newMemoryRepo()
	c.sales = append([]Sale(nil), m.sales...)
	for k, v := range m.retailLevels {
		c.retailLevels[k] = v
	}
	for k, v := range m.stockLevels {
		c.stockLevels[k] = v
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

func (m *memoryRepo) GetLevel(ctx context.Context, productID, locationID int64) (Level, error) {
	level, ok := m.retailLevels[[2]int64{productID, locationID}]
	if !ok {
		return Level{}, shared.ErrNotFound
	}
	return level, nil
}

func (m *memoryRepo) ListLevels(ctx context.Context, locationID int64) ([]Level, error) {
	var out []Level
	for _, level := range m.retailLevels {
		if locationID == 0 || level.LocationID == locationID {
			out = append(out, level)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListSales(ctx context.Context, limit, offset int) ([]Sale, int, error) {
	return m.sales, len(m.sales), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	t.repo.nextID++
	s.ID = t.repo.nextID
	s.CreatedAt = time.Now()
	t.repo.sales = append(t.repo.sales, s)
	return s, nil
}

func (t *memoryTx) LevelForUpdate(ctx context.Context, productID, locationID int64) (Level, error) {
	key := [2]int64{productID, locationID}
	level, ok := t.repo.retailLevels[key]
	if !ok {
		level = Level{ProductID: productID, LocationID: locationID, Quantity: decimal.Zero}
		t.repo.retailLevels[key] = level
	}
	return level, nil
}

func (t *memoryTx) SaveLevel(ctx context.Context, level Level) error {
	t.repo.retailLevels[[2]int64{level.ProductID, level.LocationID}] = level
	return nil
}

func (t *memoryTx) StockForUpdate(ctx context.Context, productID, locationID int64) (stock.Level, error) {
	key := [2]int64{productID, locationID}
	level, ok := t.repo.stockLevels[key]
	if !ok {
		level = stock.Level{ProductID: productID, LocationID: locationID}
		t.repo.stockLevels[key] = level
	}
	return level, nil
}

func (t *memoryTx) SaveStock(ctx context.Context, level stock.Level) error {
	t.repo.stockLevels[[2]int64{level.ProductID, level.LocationID}] = level
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil)
}

func TestComputeQuantity(t *testing.T) {
	qty, err := ComputeQuantity(decimal.RequireFromString("10.00"), decimal.RequireFromString("3.33"))
	require.NoError(t, err)
	require.True(t, qty.GreaterThan(decimal.NewFromInt(3)))
	require.True(t, qty.LessThan(decimal.RequireFromString("3.1")))
	require.EqualValues(t, 3, qty.IntPart())

	_, err = ComputeQuantity(decimal.RequireFromString("10.00"), decimal.Zero)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = ComputeQuantity(decimal.RequireFromString("10.00"), decimal.RequireFromString("-1"))
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateSaleTruncationAsymmetry(t *testing.T) {
	repo := newMemoryRepo()
	repo.stockLevels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 10}
	svc := newTestService(repo)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		ProductID:   1,
		LocationID:  1,
		AmountGiven: "10.00",
		UnitPrice:   "3.33",
	})
	require.NoError(t, err)

	// Main ledger loses the truncated 3 units.
	require.EqualValues(t, 7, repo.stockLevels[[2]int64{1, 1}].Quantity)
	// Retail pool gains the exact fractional quantity.
	retail := repo.retailLevels[[2]int64{1, 1}].Quantity
	require.True(t, retail.Equal(sale.QuantityGiven))
	require.True(t, retail.GreaterThan(decimal.NewFromInt(3)))
}

func TestCreateSaleInsufficientMainStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stockLevels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 2}
	svc := newTestService(repo)

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		ProductID:   1,
		LocationID:  1,
		AmountGiven: "10.00",
		UnitPrice:   "3.33",
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Nothing moved in either pool and no sale was recorded.
	require.EqualValues(t, 2, repo.stockLevels[[2]int64{1, 1}].Quantity)
	require.Empty(t, repo.retailLevels)
	require.Empty(t, repo.sales)
}

func TestCreateSaleZeroUnitPrice(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		ProductID:   1,
		LocationID:  1,
		AmountGiven: "10.00",
		UnitPrice:   "0",
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateSaleBelowOneUnitSkipsMainDebit(t *testing.T) {
	repo := newMemoryRepo()
	repo.stockLevels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 5}
	svc := newTestService(repo)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		ProductID:   1,
		LocationID:  1,
		AmountGiven: "1.00",
		UnitPrice:   "3.00",
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, sale.QuantityGiven.IntPart())
	// A fraction of a unit never touches the main ledger.
	require.EqualValues(t, 5, repo.stockLevels[[2]int64{1, 1}].Quantity)
	require.True(t, repo.retailLevels[[2]int64{1, 1}].Quantity.Equal(sale.QuantityGiven))
}
