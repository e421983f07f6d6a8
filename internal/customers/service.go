package customers

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

// CreateCustomerInput is the payload for registering a customer.
type CreateCustomerInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	LocationID *int64 `json:"location_id" validate:"omitempty,gt=0"`
	TIN        string `json:"tin" validate:"max=32"`
	Phone      string `json:"phone" validate:"max=32"`
}

// SupplyInput is the payload for a credit supply entry.
type SupplyInput struct {
	Amount string `json:"amount" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// PaymentInput is the payload for money received from a customer.
type PaymentInput struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=cash card bank_transfer mobile_money"`
}

// AdjustmentInput is the payload for a manual balance correction.
type AdjustmentInput struct {
	Kind   string `json:"kind" validate:"required,oneof=credit debit"`
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// Service implements customer ledger use cases.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	audit    *shared.AuditLogger
	validate *validator.Validate
}

// NewService constructs a customers service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, validate: validator.New()}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is not a valid number", shared.ErrInvalidInput)
	}
	return d, nil
}

// Create registers a customer with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateCustomerInput) (Customer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Customer{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	var created Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, Customer{
			Name:       input.Name,
			LocationID: input.LocationID,
			TIN:        input.TIN,
			Phone:      input.Phone,
			Balance:    decimal.Zero,
		})
		return err
	})
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, "customer.created", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// RecordSupply credits the balance and records the supply entry in one
// transaction.
func (s *Service) RecordSupply(ctx context.Context, customerID int64, input SupplyInput) (Customer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Customer{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		return Customer{}, err
	}

	var updated Customer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		customer, err = customer.CreditBalance(amount)
		if err != nil {
			return err
		}
		if _, err := tx.InsertSupply(ctx, SupplyEntry{
			CustomerID: customerID,
			Amount:     amount,
			Note:       input.Note,
			SuppliedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		updated = customer
		return tx.UpdateBalance(ctx, customer)
	})
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, "customer.supplied", customerID, map[string]any{"amount": amount.String()})
	return updated, nil
}

// RecordPayment debits the balance and records the payment in one
// transaction.
func (s *Service) RecordPayment(ctx context.Context, customerID int64, input PaymentInput) (Customer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Customer{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		return Customer{}, err
	}

	var updated Customer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		customer, err = customer.DebitBalance(amount)
		if err != nil {
			return err
		}
		if _, err := tx.InsertPayment(ctx, CustomerPayment{
			CustomerID: customerID,
			Amount:     amount,
			Method:     input.Method,
			PaidAt:     time.Now().UTC(),
		}); err != nil {
			return err
		}
		updated = customer
		return tx.UpdateBalance(ctx, customer)
	})
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, "customer.payment_recorded", customerID, map[string]any{"amount": amount.String()})
	return updated, nil
}

// Adjust applies a manual correction to the balance.
func (s *Service) Adjust(ctx context.Context, customerID int64, input AdjustmentInput) (Customer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Customer{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		return Customer{}, err
	}

	var updated Customer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		switch input.Kind {
		case AdjustmentCredit:
			customer, err = customer.CreditBalance(amount)
		case AdjustmentDebit:
			customer, err = customer.DebitBalance(amount)
		}
		if err != nil {
			return err
		}
		if _, err := tx.InsertAdjustment(ctx, BalanceAdjustment{
			CustomerID: customerID,
			Kind:       input.Kind,
			Amount:     amount,
			Reason:     input.Reason,
		}); err != nil {
			return err
		}
		updated = customer
		return tx.UpdateBalance(ctx, customer)
	})
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, "customer.adjusted", customerID, map[string]any{
		"kind":   input.Kind,
		"amount": amount.String(),
	})
	return updated, nil
}

// Get fetches a customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// GetLedger fetches a customer with full history and derived totals.
func (s *Service) GetLedger(ctx context.Context, id int64) (Ledger, error) {
	return s.repo.GetLedger(ctx, id)
}

// List returns a page of customers, optionally filtered by name.
func (s *Service) List(ctx context.Context, search string, page, perPage int) ([]Customer, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	out, total, err := s.repo.List(ctx, search, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(p.Page, p.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "customer",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
