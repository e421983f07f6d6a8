package retail

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// CreateSaleInput is the payload for a retail counter sale.
type CreateSaleInput struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	LocationID  int64  `json:"location_id" validate:"required,gt=0"`
	AmountGiven string `json:"amount_given" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

// Service implements the retail sub-ledger use cases.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	audit    *shared.AuditLogger
	validate *validator.Validate
}

// NewService constructs a retail service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, validate: validator.New()}
}

// CreateSale computes quantity_given = amount_given / unit_price, debits the
// integer-truncated quantity from the main ledger and credits the exact
// decimal quantity to the retail pool. The truncation asymmetry is the
// long-standing behaviour of the counter flow and is kept as-is: the retail
// pool slowly accrues the fractional remainders the main ledger never gave
// up.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	if err := s.validate.Struct(input); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	amount, err := decimal.NewFromString(input.AmountGiven)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: amount_given is not a valid amount", shared.ErrInvalidInput)
	}
	unitPrice, err := decimal.NewFromString(input.UnitPrice)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: unit_price is not a valid amount", shared.ErrInvalidInput)
	}
	quantity, err := ComputeQuantity(amount, unitPrice)
	if err != nil {
		return Sale{}, err
	}
	wholeUnits := quantity.IntPart()

	var created Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if wholeUnits > 0 {
			level, err := tx.StockForUpdate(ctx, input.ProductID, input.LocationID)
			if err != nil {
				return err
			}
			level, err = level.Debit(wholeUnits)
			if err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, level); err != nil {
				return err
			}
		}
		retailLevel, err := tx.LevelForUpdate(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}
		retailLevel.Quantity = retailLevel.Quantity.Add(quantity)
		if err := tx.SaveLevel(ctx, retailLevel); err != nil {
			return err
		}
		created, err = tx.InsertSale(ctx, Sale{
			ProductID:     input.ProductID,
			LocationID:    input.LocationID,
			AmountGiven:   amount,
			UnitPrice:     unitPrice,
			QuantityGiven: quantity,
		})
		return err
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, created.ID, map[string]any{
		"product":        input.ProductID,
		"location":       input.LocationID,
		"quantity_given": quantity.String(),
		"debited":        wholeUnits,
	})
	return created, nil
}

// GetLevel fetches one retail level.
func (s *Service) GetLevel(ctx context.Context, productID, locationID int64) (Level, error) {
	return s.repo.GetLevel(ctx, productID, locationID)
}

// ListLevels returns retail levels, optionally for one location.
func (s *Service) ListLevels(ctx context.Context, locationID int64) ([]Level, error) {
	return s.repo.ListLevels(ctx, locationID)
}

// ListSales returns a page of retail sales.
func (s *Service) ListSales(ctx context.Context, page, perPage int) ([]Sale, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	sales, total, err := s.repo.ListSales(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return sales, shared.NewPagination(p.Page, p.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "retail_sale.created",
		Entity:   "retail_sale",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.Any("error", err))
	}
}
