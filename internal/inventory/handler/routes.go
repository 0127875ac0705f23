// Package handler exposes the inventory engine over HTTP.
package handler

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups the endpoint handlers mounted under /api/v1/inventory.
type Handlers struct {
	Movements     *MovementHandler
	Snapshots     *SnapshotHandler
	Demand        *DemandHandler
	Optimizations *OptimizationHandler
	Alerts        *AlertHandler
	Orders        *PurchaseOrderHandler
	Maintenance   *MaintenanceHandler
}

// Mount registers the inventory API on r.
func (h Handlers) Mount(r chi.Router) {
	r.Route("/api/v1/inventory", func(r chi.Router) {
		// Ledger
		r.Route("/movements", func(r chi.Router) {
			r.Get("/", h.Movements.List)
			r.Post("/", h.Movements.Append)
			r.Get("/{id}", h.Movements.Get)
			r.Post("/{id}/void", h.Movements.Void)
		})

		// Per-product views
		r.Route("/products/{id}", func(r chi.Router) {
			r.Get("/snapshot", h.Snapshots.Get)
			r.Post("/snapshot/recompute", h.Snapshots.Recompute)
			r.Put("/thresholds", h.Snapshots.UpdateThresholds)
			r.Get("/demand", h.Demand.History)
			r.Get("/demand/stats", h.Demand.Stats)
			r.Post("/demand/normalize", h.Demand.Normalize)
			r.Get("/optimizations", h.Optimizations.History)
			r.Post("/optimizations", h.Optimizations.Compute)
			r.Get("/optimizations/latest", h.Optimizations.Latest)
		})
		r.Get("/snapshots", h.Snapshots.List)
		r.Get("/optimizations/{id}", h.Optimizations.Get)

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.Alerts.List)
			r.Get("/{id}", h.Alerts.Get)
			r.Post("/{id}/transitions", h.Alerts.Transition)
		})

		// Purchase orders
		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", h.Orders.List)
			r.Post("/", h.Orders.Generate)
			r.Get("/{id}", h.Orders.Get)
			r.Post("/{id}/confirm", h.Orders.Confirm)
			r.Post("/{id}/cancel", h.Orders.Cancel)
			r.Post("/{id}/receive", h.Orders.Receive)
		})

		// Batch jobs
		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/normalize", h.Maintenance.Normalize)
			r.Post("/cleanup", h.Maintenance.Cleanup)
			r.Post("/scan", h.Maintenance.Scan)
		})
	})
}
