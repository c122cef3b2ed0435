package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wendani/giving/internal/payment"
	"github.com/wendani/giving/internal/reconcile"
	"github.com/wendani/giving/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	svc *payment.Service,
	txnRepo *repository.TransactionRepo,
	reconcileSvc *reconcile.Service,
) http.Handler {
	h := &Handlers{
		svc:          svc,
		txnRepo:      txnRepo,
		reconcileSvc: reconcileSvc,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Payment lifecycle.
		r.Post("/payments/initiate", h.InitiatePayment)
		r.Post("/payments/callback", h.ProviderCallback)
		r.Get("/payments/{reference}/status", h.CheckStatus)

		// Treasurer reporting.
		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/{reference}", h.GetTransaction)
		r.Post("/transactions/reconcile", h.ReconcilePending)
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
