package transfers

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
	batches   map[int64]Batch
	levels    map[[2]int64]stock.Level
	sequences map[string]int64
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		batches:   make(map[int64]Batch),
		levels:    make(map[[2]int64]stock.Level),
		sequences: make(map[string]int64),
	}
}

func (m *memoryRepo) snapshot() *memoryRepo {
	c := newMemoryRepo()
	for k, v := range m.batches {
		v.Lines = append([]Line(nil), v.Lines...)
		c.batches[k] = v
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

func (m *memoryRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, shared.ErrNotFound
	}
	return b, nil
}

func (m *memoryRepo) ListBatches(ctx context.Context, status string, limit, offset int) ([]Batch, int, error) {
	var out []Batch
	for _, b := range m.batches {
		if status == "" || b.Status == status {
			out = append(out, b)
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

func (t *memoryTx) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	t.repo.nextID++
	b.ID = t.repo.nextID
	b.CreatedAt = time.Now()
	for i := range b.Lines {
		t.repo.nextID++
		b.Lines[i].ID = t.repo.nextID
		b.Lines[i].BatchID = b.ID
	}
	t.repo.batches[b.ID] = b
	return b, nil
}

func (t *memoryTx) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	b, ok := t.repo.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("%w: transfer batch %d", shared.ErrNotFound, id)
	}
	b.Lines = append([]Line(nil), b.Lines...)
	return b, nil
}

func (t *memoryTx) UpdateBatch(ctx context.Context, b Batch) error {
	stored, ok := t.repo.batches[b.ID]
	if !ok {
		return shared.ErrNotFound
	}
	b.Lines = stored.Lines
	t.repo.batches[b.ID] = b
	return nil
}

func (t *memoryTx) UpdateLine(ctx context.Context, l Line) error {
	b, ok := t.repo.batches[l.BatchID]
	if !ok {
		return shared.ErrNotFound
	}
	for i := range b.Lines {
		if b.Lines[i].ID == l.ID {
			b.Lines[i] = l
			t.repo.batches[l.BatchID] = b
			return nil
		}
	}
	return fmt.Errorf("%w: stock transfer %d", shared.ErrNotFound, l.ID)
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

func TestConfirmBatchMovesEveryLine(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 10}
	repo.levels[[2]int64{2, 1}] = stock.Level{ProductID: 2, LocationID: 1, Quantity: 3}
	svc := newTestService(repo)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines: []LineInput{
			{ProductID: 1, Quantity: 5},
			{ProductID: 2, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, batch.Status)

	confirmed, err := svc.ConfirmBatch(shared.WithActor(ctx, 7), batch.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	require.EqualValues(t, 7, *confirmed.ConfirmedBy)
	require.NotNil(t, confirmed.ConfirmedAt)
	for _, line := range confirmed.Lines {
		require.Equal(t, StatusConfirmed, line.Status)
	}

	require.EqualValues(t, 5, repo.levels[[2]int64{1, 1}].Quantity)
	require.EqualValues(t, 0, repo.levels[[2]int64{2, 1}].Quantity)
	require.EqualValues(t, 5, repo.levels[[2]int64{1, 2}].Quantity)
	require.EqualValues(t, 3, repo.levels[[2]int64{2, 2}].Quantity)
}

func TestConfirmBatchInsufficientLineRollsBackAll(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 10}
	repo.levels[[2]int64{2, 1}] = stock.Level{ProductID: 2, LocationID: 1, Quantity: 2}
	svc := newTestService(repo)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines: []LineInput{
			{ProductID: 1, Quantity: 5},
			{ProductID: 2, Quantity: 5},
		},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmBatch(ctx, batch.ID, "")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// First line's successful debit was rolled back with the batch.
	require.EqualValues(t, 10, repo.levels[[2]int64{1, 1}].Quantity)
	require.EqualValues(t, 2, repo.levels[[2]int64{2, 1}].Quantity)

	stored, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	for _, line := range stored.Lines {
		require.Equal(t, StatusPending, line.Status)
	}
}

func TestConfirmBatchTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 10}
	svc := newTestService(repo)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []LineInput{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmBatch(ctx, batch.ID, "")
	require.NoError(t, err)
	_, err = svc.ConfirmBatch(ctx, batch.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.EqualValues(t, 6, repo.levels[[2]int64{1, 1}].Quantity)
	require.EqualValues(t, 4, repo.levels[[2]int64{1, 2}].Quantity)
}

func TestCancelConfirmedBatchFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[[2]int64{1, 1}] = stock.Level{ProductID: 1, LocationID: 1, Quantity: 10}
	svc := newTestService(repo)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []LineInput{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)
	_, err = svc.ConfirmBatch(ctx, batch.ID, "")
	require.NoError(t, err)

	_, err = svc.CancelBatch(ctx, batch.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelPendingBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchInput{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []LineInput{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	for _, line := range cancelled.Lines {
		require.Equal(t, StatusCancelled, line.Status)
	}
	// No stock was touched.
	require.Empty(t, repo.levels[[2]int64{1, 1}])
}

func TestCreateBatchSameLocationRejected(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		FromLocationID: 1,
		ToLocationID:   1,
		Lines:          []LineInput{{ProductID: 1, Quantity: 4}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
