package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.Patch("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
		r.Get("/{id}/stock", h.GetStock)
		r.Post("/{id}/movements", h.RecordMovement)
	})

	r.Get("/movements", h.ListMovements)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateOrderStatus)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/top-products", h.TopProducts)
		r.Get("/low-stock", h.LowStock)
		r.Get("/dashboard", h.Dashboard)
	})

	return r
}
