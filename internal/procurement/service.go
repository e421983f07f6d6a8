package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// ItemInput is one line of a purchase or purchase order payload.
type ItemInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitCost  string `json:"unit_cost" validate:"required"`
}

// CreatePurchaseInput is the payload for an immediate goods receipt.
type CreatePurchaseInput struct {
	SupplierID *int64      `json:"supplier_id" validate:"omitempty,gt=0"`
	LocationID int64       `json:"location_id" validate:"required,gt=0"`
	Notes      string      `json:"notes" validate:"max=1000"`
	Items      []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderInput is the payload for a draft purchase order.
type CreateOrderInput struct {
	SupplierID   *int64      `json:"supplier_id" validate:"omitempty,gt=0"`
	LocationID   int64       `json:"location_id" validate:"required,gt=0"`
	ExpectedDate *time.Time  `json:"expected_date"`
	Notes        string      `json:"notes" validate:"max=1000"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// Service implements procurement use cases.
type Service struct {
	logger      *slog.Logger
	repo        Repository
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewService constructs a procurement service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger, idempotency *shared.IdempotencyStore) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		audit:       audit,
		idempotency: idempotency,
		validate:    validator.New(),
	}
}

func parseUnitCost(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: unit_cost is not a valid amount", shared.ErrInvalidInput)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: unit_cost must not be negative", shared.ErrInvalidInput)
	}
	return d, nil
}

// CreatePurchase records a goods receipt and credits every line's stock in
// the same transaction as the document insert.
func (s *Service) CreatePurchase(ctx context.Context, input CreatePurchaseInput) (Purchase, error) {
	if err := s.validate.Struct(input); err != nil {
		return Purchase{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	items := make([]PurchaseItem, 0, len(input.Items))
	total := decimal.Zero
	for _, in := range input.Items {
		unit, err := parseUnitCost(in.UnitCost)
		if err != nil {
			return Purchase{}, err
		}
		line := unit.Mul(decimal.NewFromInt(in.Quantity))
		items = append(items, PurchaseItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitCost:  unit,
			LineTotal: line,
		})
		total = total.Add(line)
	}

	var created Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := tx.NextNumber(ctx, "PUR")
		if err != nil {
			return err
		}
		purchase := Purchase{
			Reference:  reference,
			SupplierID: input.SupplierID,
			LocationID: input.LocationID,
			TotalCost:  total,
			Notes:      input.Notes,
			Items:      items,
		}
		created, err = tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		for _, item := range created.Items {
			level, err := tx.StockForUpdate(ctx, item.ProductID, created.LocationID)
			if err != nil {
				return err
			}
			level, err = level.Credit(item.Quantity)
			if err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, level); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	s.recordAudit(ctx, "purchase.created", "purchase", created.ID, map[string]any{
		"reference": created.Reference,
		"location":  created.LocationID,
		"lines":     len(created.Items),
	})
	return created, nil
}

// GetPurchase fetches a purchase with its items.
func (s *Service) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// ListPurchases returns a page of purchases.
func (s *Service) ListPurchases(ctx context.Context, page, perPage int) ([]Purchase, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	purchases, total, err := s.repo.ListPurchases(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return purchases, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// CreateOrder records a draft purchase order. No stock moves.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if err := s.validate.Struct(input); err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	items := make([]PurchaseOrderItem, 0, len(input.Items))
	total := decimal.Zero
	for _, in := range input.Items {
		unit, err := parseUnitCost(in.UnitCost)
		if err != nil {
			return PurchaseOrder{}, err
		}
		line := unit.Mul(decimal.NewFromInt(in.Quantity))
		items = append(items, PurchaseOrderItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitCost:  unit,
			LineTotal: line,
		})
		total = total.Add(line)
	}

	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := tx.NextNumber(ctx, "PO")
		if err != nil {
			return err
		}
		order := PurchaseOrder{
			Reference:    reference,
			SupplierID:   input.SupplierID,
			LocationID:   input.LocationID,
			Status:       OrderDraft,
			ExpectedDate: input.ExpectedDate,
			TotalCost:    total,
			Notes:        input.Notes,
			Items:        items,
		}
		created, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, "purchase_order.created", "purchase_order", created.ID, map[string]any{
		"reference": created.Reference,
	})
	return created, nil
}

// GetOrder fetches an order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns a page of orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status string, page, perPage int) ([]PurchaseOrder, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	orders, total, err := s.repo.ListOrders(ctx, status, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// MarkOrdered moves a draft order to ordered.
func (s *Service) MarkOrdered(ctx context.Context, id int64) (PurchaseOrder, error) {
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order, err = order.MarkOrdered()
		if err != nil {
			return err
		}
		updated = order
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "purchase_order.ordered", "purchase_order", id, nil)
	return updated, nil
}

// ReceiveOrder marks an ordered order received and credits every line once.
// The row lock plus the ordered-only transition guarantee the credit is
// single-shot; an idempotency key adds a replay guard across retries.
func (s *Service) ReceiveOrder(ctx context.Context, id int64, idempotencyKey string) (PurchaseOrder, error) {
	if idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "procurement.receive"); err != nil {
			return PurchaseOrder{}, err
		}
	}

	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order, err = order.MarkReceived(time.Now().UTC())
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			level, err := tx.StockForUpdate(ctx, item.ProductID, order.LocationID)
			if err != nil {
				return err
			}
			level, err = level.Credit(item.Quantity)
			if err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, level); err != nil {
				return err
			}
		}
		updated = order
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		if idempotencyKey != "" {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Error("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", delErr))
			}
		}
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, "purchase_order.received", "purchase_order", id, map[string]any{
		"reference": updated.Reference,
		"lines":     len(updated.Items),
	})
	return updated, nil
}

// CancelOrder cancels a draft or ordered order. No stock effect.
func (s *Service) CancelOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order, err = order.Cancel()
		if err != nil {
			return err
		}
		updated = order
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "purchase_order.cancelled", "purchase_order", id, nil)
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
