package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tebahq/teba/internal/shared"
)

// LineInput is one line of a batch payload.
type LineInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// CreateBatchInput is the payload for a pending transfer batch.
type CreateBatchInput struct {
	FromLocationID int64       `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64       `json:"to_location_id" validate:"required,gt=0"`
	Notes          string      `json:"notes" validate:"max=1000"`
	Lines          []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Service implements transfer use cases.
type Service struct {
	logger      *slog.Logger
	repo        Repository
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewService constructs a transfers service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger, idempotency *shared.IdempotencyStore) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		audit:       audit,
		idempotency: idempotency,
		validate:    validator.New(),
	}
}

// CreateBatch records a pending batch. No stock moves until confirmation.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	if err := s.validate.Struct(input); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if input.FromLocationID == input.ToLocationID {
		return Batch{}, fmt.Errorf("%w: source and destination locations must differ", shared.ErrInvalidInput)
	}

	lines := make([]Line, 0, len(input.Lines))
	for _, in := range input.Lines {
		lines = append(lines, Line{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Status:    StatusPending,
		})
	}

	var created Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := tx.NextNumber(ctx, "ST")
		if err != nil {
			return err
		}
		batch := Batch{
			Reference:      reference,
			FromLocationID: input.FromLocationID,
			ToLocationID:   input.ToLocationID,
			Status:         StatusPending,
			Notes:          input.Notes,
			Lines:          lines,
		}
		created, err = tx.InsertBatch(ctx, batch)
		return err
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "transfer_batch.created", created.ID, map[string]any{"reference": created.Reference})
	return created, nil
}

// ConfirmBatch confirms every pending line, moving stock from source to
// destination as one transaction. A single failing line aborts the whole
// confirmation: the batch never flips confirmed with an unconfirmed line.
func (s *Service) ConfirmBatch(ctx context.Context, id int64, idempotencyKey string) (Batch, error) {
	if idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "transfers.confirm"); err != nil {
			return Batch{}, err
		}
	}

	var updated Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		batch, err = batch.Confirm(shared.ActorFromContext(ctx), time.Now().UTC())
		if err != nil {
			return err
		}
		for i := range batch.Lines {
			line, err := batch.Lines[i].Confirm()
			if err != nil {
				return err
			}
			source, err := tx.StockForUpdate(ctx, line.ProductID, batch.FromLocationID)
			if err != nil {
				return err
			}
			source, err = source.Debit(line.Quantity)
			if err != nil {
				return err
			}
			dest, err := tx.StockForUpdate(ctx, line.ProductID, batch.ToLocationID)
			if err != nil {
				return err
			}
			dest, err = dest.Credit(line.Quantity)
			if err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, source); err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, dest); err != nil {
				return err
			}
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
			batch.Lines[i] = line
		}
		updated = batch
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		if idempotencyKey != "" {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Error("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", delErr))
			}
		}
		return Batch{}, err
	}
	s.recordAudit(ctx, "transfer_batch.confirmed", id, map[string]any{
		"reference": updated.Reference,
		"lines":     len(updated.Lines),
	})
	return updated, nil
}

// CancelBatch cancels a pending batch and all its pending lines. No stock
// effect.
func (s *Service) CancelBatch(ctx context.Context, id int64) (Batch, error) {
	var updated Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		batch, err = batch.Cancel()
		if err != nil {
			return err
		}
		for i := range batch.Lines {
			if batch.Lines[i].Status != StatusPending {
				continue
			}
			line, err := batch.Lines[i].Cancel()
			if err != nil {
				return err
			}
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
			batch.Lines[i] = line
		}
		updated = batch
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "transfer_batch.cancelled", id, nil)
	return updated, nil
}

// GetBatch fetches a batch with its lines.
func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches returns a page of batches, optionally filtered by status.
func (s *Service) ListBatches(ctx context.Context, status string, page, perPage int) ([]Batch, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	batches, total, err := s.repo.ListBatches(ctx, status, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return batches, shared.NewPagination(p.Page, p.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "transfer_batch",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
