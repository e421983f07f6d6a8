package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tebahq/teba/internal/shared"
)

// CreateInput is the payload for opening a stocktake.
type CreateInput struct {
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Notes      string `json:"notes" validate:"max=1000"`
}

// CountInput is the payload for counting one item.
type CountInput struct {
	Counted int64 `json:"quantity_counted" validate:"gte=0"`
}

// Service implements stocktake use cases.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	audit    *shared.AuditLogger
	validate *validator.Validate
}

// NewService constructs a stocktake service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, validate: validator.New()}
}

// Create opens a draft stocktake, snapshotting the current quantity of every
// ledger row at the location.
func (s *Service) Create(ctx context.Context, input CreateInput) (StockTake, error) {
	if err := s.validate.Struct(input); err != nil {
		return StockTake{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	var created StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := tx.NextNumber(ctx, "STK")
		if err != nil {
			return err
		}
		levels, err := tx.LevelsAtLocation(ctx, input.LocationID)
		if err != nil {
			return err
		}
		items := make([]Item, 0, len(levels))
		for _, level := range levels {
			items = append(items, Item{
				ProductID:      level.ProductID,
				QuantityOnHand: level.Quantity,
			})
		}
		created, err = tx.Insert(ctx, StockTake{
			Reference:  reference,
			LocationID: input.LocationID,
			Status:     StatusDraft,
			Notes:      input.Notes,
			Items:      items,
		})
		return err
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, "stocktake.created", created.ID, map[string]any{
		"reference": created.Reference,
		"items":     len(created.Items),
	})
	return created, nil
}

// Start moves a draft stocktake to in_progress.
func (s *Service) Start(ctx context.Context, id int64) (StockTake, error) {
	var updated StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		st, err = st.Start()
		if err != nil {
			return err
		}
		updated = st
		return tx.Update(ctx, st)
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, "stocktake.started", id, nil)
	return updated, nil
}

// CountItem records a physical count for one item and derives its variance.
func (s *Service) CountItem(ctx context.Context, stockTakeID, itemID int64, input CountInput) (StockTake, error) {
	if err := s.validate.Struct(input); err != nil {
		return StockTake{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	var updated StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.GetForUpdate(ctx, stockTakeID)
		if err != nil {
			return err
		}
		if !st.Countable() {
			return fmt.Errorf("%w: stocktake %s is %s, counting is closed",
				shared.ErrInvalidTransition, st.Reference, st.Status)
		}
		found := false
		for i := range st.Items {
			if st.Items[i].ID != itemID {
				continue
			}
			item, err := st.Items[i].WithCount(input.Counted)
			if err != nil {
				return err
			}
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			st.Items[i] = item
			found = true
			break
		}
		if !found {
			return fmt.Errorf("%w: stocktake item %d", shared.ErrNotFound, itemID)
		}
		updated = st
		return nil
	})
	if err != nil {
		return StockTake{}, err
	}
	return updated, nil
}

// Complete finalises the stocktake, overwriting the ledger quantity for every
// counted item. Uncounted items keep their pre-stocktake value. Runs once;
// re-invocation fails.
func (s *Service) Complete(ctx context.Context, id int64) (StockTake, error) {
	var updated StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		st, err = st.Complete(time.Now().UTC())
		if err != nil {
			return err
		}
		for _, item := range st.Items {
			if item.Counted == nil {
				continue
			}
			level, err := tx.StockForUpdate(ctx, item.ProductID, st.LocationID)
			if err != nil {
				return err
			}
			level, err = level.WithQuantity(*item.Counted)
			if err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, level); err != nil {
				return err
			}
		}
		updated = st
		return tx.Update(ctx, st)
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, "stocktake.completed", id, map[string]any{"reference": updated.Reference})
	return updated, nil
}

// Cancel abandons an open stocktake.
func (s *Service) Cancel(ctx context.Context, id int64) (StockTake, error) {
	var updated StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		st, err = st.Cancel()
		if err != nil {
			return err
		}
		updated = st
		return tx.Update(ctx, st)
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, "stocktake.cancelled", id, nil)
	return updated, nil
}

// Get fetches a stocktake with its items.
func (s *Service) Get(ctx context.Context, id int64) (StockTake, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of stocktakes, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, page, perPage int) ([]StockTake, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	takes, total, err := s.repo.List(ctx, status, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return takes, shared.NewPagination(p.Page, p.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "stock_take",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
