package retail

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tebahq/teba/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the retail sub-ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs retail handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers retail routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleCreateSale)
	r.Get("/sales", h.handleListSales)
	r.Get("/levels", h.handleListLevels)
	r.Get("/levels/{productID}/{locationID}", h.handleGetLevel)
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var input CreateSaleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.logger.Error("create retail sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	sales, pagination, err := h.service.ListSales(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list retail sales", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales, "pagination": pagination})
}

func (h *Handler) handleListLevels(w http.ResponseWriter, r *http.Request) {
	var locationID int64
	if v := r.URL.Query().Get("location_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "location_id must be an integer")
			return
		}
		locationID = id
	}
	levels, err := h.service.ListLevels(r.Context(), locationID)
	if err != nil {
		h.logger.Error("list retail levels", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"levels": levels})
}

func (h *Handler) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	productID, err1 := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	locationID, err2 := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "ids must be integers")
		return
	}
	level, err := h.service.GetLevel(r.Context(), productID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}
