package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
)

// ItemInput is one line of a sale or sale order payload.
type ItemInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

// CreateSaleInput is the payload for a draft sale.
type CreateSaleInput struct {
	CustomerID *int64      `json:"customer_id" validate:"omitempty,gt=0"`
	LocationID int64       `json:"location_id" validate:"required,gt=0"`
	DueDate    *time.Time  `json:"due_date"`
	Notes      string      `json:"notes" validate:"max=1000"`
	Items      []ItemInput `json:"items" validate:"dive"`
}

// PaymentInput is the payload for recording money against a sale.
type PaymentInput struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=cash card bank_transfer mobile_money"`
}

// CreateOrderInput is the payload for a draft sale order.
type CreateOrderInput struct {
	CustomerID *int64      `json:"customer_id" validate:"omitempty,gt=0"`
	LocationID int64       `json:"location_id" validate:"required,gt=0"`
	Notes      string      `json:"notes" validate:"max=1000"`
	Items      []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// Service implements sales use cases.
type Service struct {
	logger      *slog.Logger
	repo        Repository
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewService constructs a sales service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger, idempotency *shared.IdempotencyStore) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		audit:       audit,
		idempotency: idempotency,
		validate:    validator.New(),
	}
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is not a valid amount", shared.ErrInvalidInput, field)
	}
	return d, nil
}

func buildSaleItem(in ItemInput) (SaleItem, error) {
	unit, err := parseAmount("unit_price", in.UnitPrice)
	if err != nil {
		return SaleItem{}, err
	}
	if unit.IsNegative() {
		return SaleItem{}, fmt.Errorf("%w: unit_price must not be negative", shared.ErrInvalidInput)
	}
	return SaleItem{
		ProductID: in.ProductID,
		Quantity:  in.Quantity,
		UnitPrice: unit,
		LineTotal: unit.Mul(decimal.NewFromInt(in.Quantity)),
	}, nil
}

// CreateSale records a draft sale. Stock is not touched; only confirmed sale
// orders move the ledger.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	if err := s.validate.Struct(input); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	items := make([]SaleItem, 0, len(input.Items))
	total := decimal.Zero
	for _, in := range input.Items {
		item, err := buildSaleItem(in)
		if err != nil {
			return Sale{}, err
		}
		items = append(items, item)
		total = total.Add(item.LineTotal)
	}

	var created Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := tx.NextNumber(ctx, "SAL")
		if err != nil {
			return err
		}
		sale := Sale{
			Reference:   reference,
			CustomerID:  input.CustomerID,
			LocationID:  input.LocationID,
			Status:      SaleDraft,
			TotalAmount: total,
			PaidAmount:  decimal.Zero,
			DueDate:     input.DueDate,
			Notes:       input.Notes,
			Items:       items,
		}
		created, err = tx.InsertSale(ctx, sale)
		return err
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, "sale.created", "sale", created.ID, map[string]any{"reference": created.Reference})
	return created, nil
}

// AddItem appends a line and re-derives the sale total from all items.
func (s *Service) AddItem(ctx context.Context, saleID int64, input ItemInput) (Sale, error) {
	if err := s.validate.Struct(input); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	item, err := buildSaleItem(input)
	if err != nil {
		return Sale{}, err
	}

	var updated Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !sale.Editable() {
			return fmt.Errorf("%w: sale %s is %s, items are frozen",
				shared.ErrInvalidTransition, sale.Reference, sale.Status)
		}
		item.SaleID = saleID
		if _, err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, saleID)
		if err != nil {
			return err
		}
		sale, err = sale.WithTotal(items)
		if err != nil {
			return err
		}
		updated = sale
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return updated, nil
}

// UpdateItem rewrites a line and re-derives the sale total from all items.
func (s *Service) UpdateItem(ctx context.Context, saleID, itemID int64, input ItemInput) (Sale, error) {
	if err := s.validate.Struct(input); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	item, err := buildSaleItem(input)
	if err != nil {
		return Sale{}, err
	}

	var updated Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !sale.Editable() {
			return fmt.Errorf("%w: sale %s is %s, items are frozen",
				shared.ErrInvalidTransition, sale.Reference, sale.Status)
		}
		item.ID = itemID
		item.SaleID = saleID
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, saleID)
		if err != nil {
			return err
		}
		sale, err = sale.WithTotal(items)
		if err != nil {
			return err
		}
		updated = sale
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	return updated, nil
}

// RecordPayment inserts a payment and recomputes paid_amount from the full
// payment set, never incrementally.
func (s *Service) RecordPayment(ctx context.Context, saleID int64, input PaymentInput) (Sale, error) {
	if err := s.validate.Struct(input); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	amount, err := parseAmount("amount", input.Amount)
	if err != nil {
		return Sale{}, err
	}

	var updated Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if err := sale.CheckPayment(amount); err != nil {
			return err
		}
		payment := Payment{
			SaleID:    saleID,
			Reference: uuid.NewString(),
			Amount:    amount,
			Method:    input.Method,
			PaidAt:    time.Now().UTC(),
		}
		if _, err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		payments, err := tx.ListPayments(ctx, saleID)
		if err != nil {
			return err
		}
		sale = sale.WithPayments(payments)
		updated = sale
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, "sale.payment_recorded", "sale", saleID, map[string]any{
		"amount": amount.String(),
		"method": input.Method,
		"status": updated.Status,
	})
	return updated, nil
}

// SendSale moves a draft to sent.
func (s *Service) SendSale(ctx context.Context, id int64) (Sale, error) {
	return s.transitionSale(ctx, id, "sale.sent", Sale.MarkSent)
}

// CancelSale voids an unpaid sale.
func (s *Service) CancelSale(ctx context.Context, id int64) (Sale, error) {
	return s.transitionSale(ctx, id, "sale.cancelled", Sale.Cancel)
}

func (s *Service) transitionSale(ctx context.Context, id int64, action string, fn func(Sale) (Sale, error)) (Sale, error) {
	var updated Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		sale, err = fn(sale)
		if err != nil {
			return err
		}
		updated = sale
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, action, "sale", id, nil)
	return updated, nil
}

// GetSale fetches a sale with items and payments.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales returns a page of sales, optionally filtered by status.
func (s *Service) ListSales(ctx context.Context, status string, page, perPage int) ([]Sale, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	sales, total, err := s.repo.ListSales(ctx, status, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return sales, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// FlagOverdue flips sent sales past their due date to overdue. Called by the
// nightly scan.
func (s *Service) FlagOverdue(ctx context.Context, asOf time.Time) ([]int64, error) {
	ids, err := s.repo.MarkOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.recordAudit(ctx, "sale.overdue", "sale", id, nil)
	}
	return ids, nil
}

// CreateOrder records a draft sale order. No stock moves until confirmation.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (SaleOrder, error) {
	if err := s.validate.Struct(input); err != nil {
		return SaleOrder{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	items := make([]SaleOrderItem, 0, len(input.Items))
	total := decimal.Zero
	for _, in := range input.Items {
		line, err := buildSaleItem(in)
		if err != nil {
			return SaleOrder{}, err
		}
		items = append(items, SaleOrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
		total = total.Add(line.LineTotal)
	}

	var created SaleOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := tx.NextNumber(ctx, "SO")
		if err != nil {
			return err
		}
		order := SaleOrder{
			Reference:   reference,
			CustomerID:  input.CustomerID,
			LocationID:  input.LocationID,
			Status:      OrderDraft,
			TotalAmount: total,
			Notes:       input.Notes,
			Items:       items,
		}
		created, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		return SaleOrder{}, err
	}
	s.recordAudit(ctx, "sale_order.created", "sale_order", created.ID, map[string]any{"reference": created.Reference})
	return created, nil
}

// ConfirmOrder validates every line has sufficient stock, then debits all
// lines. The first deficient product fails the whole confirmation; nothing is
// debited in that case.
func (s *Service) ConfirmOrder(ctx context.Context, id int64, idempotencyKey string) (SaleOrder, error) {
	if idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "sales.confirm"); err != nil {
			return SaleOrder{}, err
		}
	}

	var updated SaleOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order, err = order.Confirm(time.Now().UTC())
		if err != nil {
			return err
		}
		// Lock and debit every line in memory first so an insufficient line
		// aborts before any level row is written.
		debited := make([]stock.Level, 0, len(order.Items))
		for _, item := range order.Items {
			level, err := tx.StockForUpdate(ctx, item.ProductID, order.LocationID)
			if err != nil {
				return err
			}
			level, err = level.Debit(item.Quantity)
			if err != nil {
				return err
			}
			debited = append(debited, level)
		}
		for _, level := range debited {
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
		return SaleOrder{}, err
	}
	s.recordAudit(ctx, "sale_order.confirmed", "sale_order", id, map[string]any{
		"reference": updated.Reference,
		"lines":     len(updated.Items),
	})
	return updated, nil
}

// DeliverOrder moves a confirmed order to delivered.
func (s *Service) DeliverOrder(ctx context.Context, id int64) (SaleOrder, error) {
	return s.transitionOrder(ctx, id, "sale_order.delivered", SaleOrder.Deliver)
}

// CancelOrder cancels a draft order. Confirmed orders have moved stock and
// cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, id int64) (SaleOrder, error) {
	return s.transitionOrder(ctx, id, "sale_order.cancelled", SaleOrder.Cancel)
}

func (s *Service) transitionOrder(ctx context.Context, id int64, action string, fn func(SaleOrder) (SaleOrder, error)) (SaleOrder, error) {
	var updated SaleOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order, err = fn(order)
		if err != nil {
			return err
		}
		updated = order
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return SaleOrder{}, err
	}
	s.recordAudit(ctx, action, "sale_order", id, nil)
	return updated, nil
}

// GetOrder fetches a sale order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (SaleOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns a page of sale orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status string, page, perPage int) ([]SaleOrder, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	orders, total, err := s.repo.ListOrders(ctx, status, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(p.Page, p.PerPage, total), nil
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
