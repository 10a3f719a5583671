// internal/server/server.go
package server

import (
	"context"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/ledger"
	"libradesk/internal/stats"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Records is the read side the handlers need besides the engine.
type Records interface {
	FindBook(ctx context.Context, isbn string) (catalog.Book, error)
	FindReader(ctx context.Context, subscriberNumber string) (catalog.Reader, error)
	AllBooks(ctx context.Context) ([]catalog.Book, error)
	AllReaders(ctx context.Context) ([]catalog.Reader, error)
	FindLoan(ctx context.Context, id string) (ledger.Loan, error)
	AllLoans(ctx context.Context) ([]ledger.Loan, error)
	LoansByReader(ctx context.Context, subscriberNumber string) ([]ledger.Loan, error)
}

// Config wires the router.
type Config struct {
	Records            Records
	Engine             circulation.Service
	Stats              stats.Service
	Health             func(ctx context.Context) error
	Log                *zap.Logger
	RateLimitPerMinute int
}

type Handler struct {
	records Records
	engine  circulation.Service
	stats   stats.Service
	health  func(ctx context.Context) error
	log     *zap.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg Config) http.Handler {
	h := &Handler{
		records: cfg.Records,
		engine:  cfg.Engine,
		stats:   cfg.Stats,
		health:  cfg.Health,
		log:     cfg.Log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitPerMinute))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.handleListBooks)
			r.Post("/", h.handleAddBook)
			r.Get("/{isbn}", h.handleGetBook)
			r.Put("/{isbn}", h.handleUpdateBook)
			r.Delete("/{isbn}", h.handleRemoveBook)
		})

		r.Route("/readers", func(r chi.Router) {
			r.Get("/", h.handleListReaders)
			r.Post("/", h.handleRegisterReader)
			r.Get("/{subscriber}", h.handleGetReader)
			r.Put("/{subscriber}", h.handleUpdateReader)
			r.Delete("/{subscriber}", h.handleRemoveReader)
			r.Get("/{subscriber}/loans", h.handleReaderLoans)
			r.Get("/{subscriber}/overdue", h.handleReaderOverdue)
			r.Get("/{subscriber}/eligibility", h.handleEligibility)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.handleListLoans)
			r.Post("/", h.handleBorrow)
			r.Get("/overdue", h.handleOverdue)
			r.Get("/{id}", h.handleGetLoan)
			r.Post("/{id}/return", h.handleReturn)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/summary", h.handleSummary)
			r.Get("/top-books", h.handleTopBooks)
			r.Get("/loans-by-reader", h.handleLoansByReader)
			r.Get("/readers", h.handleReaderCounts)
		})

		r.Get("/journal", h.handleJournal)
		r.Post("/import/{kind}", h.handleImport)
		r.Get("/export/{kind}", h.handleExport)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
