package stocktake

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tebahq/teba/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stocktakes.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stocktake handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stocktake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/start", h.handleStart)
	r.Put("/{id}/items/{itemID}", h.handleCountItem)
	r.Post("/{id}/complete", h.handleComplete)
	r.Post("/{id}/cancel", h.handleCancel)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	take, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create stocktake", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, take)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	takes, pagination, err := h.service.List(r.Context(), q.Get("status"), page, perPage)
	if err != nil {
		h.logger.Error("list stocktakes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stocktakes": takes, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "id must be a positive integer")
		return
	}
	take, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, take)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "id must be a positive integer")
		return
	}
	take, err := h.service.Start(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, take)
}

func (h *Handler) handleCountItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	itemID, okItem := idParam(r, "itemID")
	if !ok || !okItem {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "ids must be positive integers")
		return
	}
	var input CountInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	take, err := h.service.CountItem(r.Context(), id, itemID, input)
	if err != nil {
		h.logger.Error("count stocktake item", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, take)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "id must be a positive integer")
		return
	}
	take, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.logger.Error("complete stocktake", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, take)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "id must be a positive integer")
		return
	}
	take, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, take)
}
