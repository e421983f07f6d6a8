package cashout

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tebahq/teba/internal/platform/httpx"
)

// Handler wires HTTP endpoints for daily reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs cashout handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers cashout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/", h.handleUpsert)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/expenses", h.handleRecordExpense)
	r.Get("/expenses", h.handleListExpenses)
	r.Get("/expense-names", h.handleListExpenseNames)
}

// dateRange pulls from/to query params, defaulting to the last 31 days.
func dateRange(r *http.Request) (time.Time, time.Time) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := now.AddDate(0, 0, -31), now
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			from = parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			to = parsed
		}
	}
	return from, to
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var input UpsertInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	summary, err := h.service.Upsert(r.Context(), input)
	if err != nil {
		h.logger.Error("upsert cashout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	from, to := dateRange(r)
	summaries, pagination, err := h.service.List(r.Context(), from, to, page, perPage)
	if err != nil {
		h.logger.Error("list cashouts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cashouts": summaries, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "id must be a positive integer")
		return
	}
	summary, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var input ExpenseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	expense, err := h.service.RecordExpense(r.Context(), input)
	if err != nil {
		h.logger.Error("record expense", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	from, to := dateRange(r)
	expenses, pagination, err := h.service.ListExpenses(r.Context(), from, to, page, perPage)
	if err != nil {
		h.logger.Error("list expenses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": expenses, "pagination": pagination})
}

func (h *Handler) handleListExpenseNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.ListExpenseNames(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expense_names": names})
}
