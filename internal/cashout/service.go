package cashout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// UpsertInput carries the entered figures for one day and location. Derived
// figures are never accepted from clients.
type UpsertInput struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	LocationID      *int64 `json:"location_id" validate:"omitempty,gt=0"`
	OpeningBalance  string `json:"opening_balance" validate:"required"`
	Paid            string `json:"paid" validate:"required"`
	CustomerBalance string `json:"customer_balance" validate:"required"`
	Wholesale       string `json:"wholesale" validate:"required"`
	Debt            string `json:"debt" validate:"required"`
	Cash            string `json:"cash" validate:"required"`
	Accounts        string `json:"accounts" validate:"required"`
	Expenses        string `json:"expenses" validate:"required"`
	Notes           string `json:"notes" validate:"max=2000"`
}

// ExpenseInput is the payload for recording a spend.
type ExpenseInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Notes    string `json:"notes" validate:"max=2000"`
	Amount   string `json:"amount" validate:"required"`
	Location string `json:"location" validate:"max=100"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

// Service implements daily reconciliation use cases.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	audit    *shared.AuditLogger
	validate *validator.Validate
}

// NewService constructs a cashout service.
func NewService(logger *slog.Logger, repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, validate: validator.New()}
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", shared.ErrInvalidInput)
	}
	return d, nil
}

func parseFigure(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is not a valid number", shared.ErrInvalidInput, name)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must not be negative", shared.ErrInvalidInput, name)
	}
	return d, nil
}

// Upsert writes the reconciliation row for the given day and location,
// replacing any previously entered figures.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Summary, error) {
	if err := s.validate.Struct(input); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	date, err := parseDate(input.Date)
	if err != nil {
		return Summary{}, err
	}
	row := Cashout{Date: date, LocationID: input.LocationID, Notes: input.Notes}
	for _, f := range []struct {
		dst  *decimal.Decimal
		name string
		raw  string
	}{
		{&row.OpeningBalance, "opening_balance", input.OpeningBalance},
		{&row.Paid, "paid", input.Paid},
		{&row.CustomerBalance, "customer_balance", input.CustomerBalance},
		{&row.Wholesale, "wholesale", input.Wholesale},
		{&row.Debt, "debt", input.Debt},
		{&row.Cash, "cash", input.Cash},
		{&row.Accounts, "accounts", input.Accounts},
		{&row.Expenses, "expenses", input.Expenses},
	} {
		if *f.dst, err = parseFigure(f.name, f.raw); err != nil {
			return Summary{}, err
		}
	}

	var saved Cashout
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err = tx.Upsert(ctx, row)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	s.recordAudit(ctx, "cashout.upserted", saved.ID, map[string]any{
		"date":       input.Date,
		"difference": saved.Difference().String(),
	})
	return Summarize(saved), nil
}

// Get returns one cashout row with derived figures.
func (s *Service) Get(ctx context.Context, id int64) (Summary, error) {
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(row), nil
}

// List returns cashout rows within a date range, newest first.
func (s *Service) List(ctx context.Context, from, to time.Time, page, perPage int) ([]Summary, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	rows, total, err := s.repo.List(ctx, from, to, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, Summarize(row))
	}
	return out, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// RecordExpense stores a spend and registers its name for reuse.
func (s *Service) RecordExpense(ctx context.Context, input ExpenseInput) (Expense, error) {
	if err := s.validate.Struct(input); err != nil {
		return Expense{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	date, err := parseDate(input.Date)
	if err != nil {
		return Expense{}, err
	}
	amount, err := parseFigure("amount", input.Amount)
	if err != nil {
		return Expense{}, err
	}
	if amount.IsZero() {
		return Expense{}, fmt.Errorf("%w: amount must be positive", shared.ErrInvalidInput)
	}

	var created Expense
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertExpense(ctx, Expense{
			Name:     input.Name,
			Notes:    input.Notes,
			Amount:   amount,
			Location: input.Location,
			Date:     date,
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertExpenseName(ctx, input.Name)
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	s.recordAudit(ctx, "expense.recorded", created.ID, map[string]any{
		"name":   created.Name,
		"amount": amount.String(),
	})
	return created, nil
}

// ListExpenses returns expenses within a date range, newest first.
func (s *Service) ListExpenses(ctx context.Context, from, to time.Time, page, perPage int) ([]Expense, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	out, total, err := s.repo.ListExpenses(ctx, from, to, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// ListExpenseNames returns the reusable expense labels.
func (s *Service) ListExpenseNames(ctx context.Context) ([]ExpenseName, error) {
	return s.repo.ListExpenseNames(ctx)
}

// Snapshot seeds or refreshes the day's row for every location from what the
// system already knows: payments received and expenses booked that day. The
// remaining figures are preserved if the row exists, zero otherwise. The
// nightly job calls this so mornings start from a prefilled sheet.
func (s *Service) Snapshot(ctx context.Context, date time.Time) (int, error) {
	locations, err := s.repo.Locations(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, loc := range locations {
		locationID := loc.ID
		paid, err := s.repo.PaymentsForDay(ctx, date, locationID)
		if err != nil {
			return written, err
		}
		expenses, err := s.repo.ExpensesForDay(ctx, date, loc.Name)
		if err != nil {
			return written, err
		}
		row, err := s.repo.GetForDay(ctx, date, &locationID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			row = Cashout{Date: date, LocationID: &locationID}
		case err != nil:
			return written, err
		}
		row.Paid = paid
		row.Expenses = expenses
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.Upsert(ctx, row)
			return err
		})
		if err != nil {
			return written, err
		}
		written++
	}
	s.logger.Info("cashout snapshot",
		slog.Time("date", date), slog.Int("locations", written))
	return written, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "cashout",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
