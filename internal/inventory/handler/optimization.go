package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// OptimizationHandler handles EOQ and reorder point endpoints
type OptimizationHandler struct {
	optimizer *service.OptimizationService
	logger    *logger.Logger
}

// NewOptimizationHandler creates a new optimization handler
func NewOptimizationHandler(optimizer *service.OptimizationService, log *logger.Logger) *OptimizationHandler {
	return &OptimizationHandler{
		optimizer: optimizer,
		logger:    log,
	}
}

// Compute runs a calculation and stores the result
func (h *OptimizationHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var params service.OptimizationParams
	if err := decode(r, &params); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.optimizer.Compute(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Latest returns the result currently in force
func (h *OptimizationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	result, err := h.optimizer.Latest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// History lists recent results of a product
func (h *OptimizationHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	results, err := h.optimizer.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, results)
}

// Get returns a stored result by its own ID
func (h *OptimizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.optimizer.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
