package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tebahq/teba/internal/cashout"
	"github.com/tebahq/teba/internal/catalog"
	"github.com/tebahq/teba/internal/customers"
	"github.com/tebahq/teba/internal/observability"
	"github.com/tebahq/teba/internal/procurement"
	"github.com/tebahq/teba/internal/retail"
	"github.com/tebahq/teba/internal/sales"
	"github.com/tebahq/teba/internal/stock"
	"github.com/tebahq/teba/internal/stocktake"
	"github.com/tebahq/teba/internal/transfers"
	"github.com/tebahq/teba/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CatalogHandler     *catalog.Handler
	StockHandler       *stock.Handler
	ProcurementHandler *procurement.Handler
	SalesHandler       *sales.Handler
	TransfersHandler   *transfers.Handler
	RetailHandler      *retail.Handler
	StockTakeHandler   *stocktake.Handler
	CustomersHandler   *customers.Handler
	CashoutHandler     *cashout.Handler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/stock", params.StockHandler.MountRoutes)
	r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	r.Route("/sales", params.SalesHandler.MountRoutes)
	r.Route("/transfers", params.TransfersHandler.MountRoutes)
	r.Route("/retail", params.RetailHandler.MountRoutes)
	r.Route("/stocktakes", params.StockTakeHandler.MountRoutes)
	r.Route("/customers", params.CustomersHandler.MountRoutes)
	r.Route("/cashout", params.CashoutHandler.MountRoutes)

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
