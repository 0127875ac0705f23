package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// DemandHandler handles demand series endpoints
type DemandHandler struct {
	demand        *service.DemandService
	defaultWindow int
	logger        *logger.Logger
}

// NewDemandHandler creates a new demand handler. defaultWindow bounds
// history requests that omit from.
func NewDemandHandler(demand *service.DemandService, defaultWindow int, log *logger.Logger) *DemandHandler {
	return &DemandHandler{
		demand:        demand,
		defaultWindow: defaultWindow,
		logger:        log,
	}
}

// History returns the daily demand records of a product
func (h *DemandHandler) History(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	end := time.Now().UTC()
	if to != nil {
		end = *to
	}
	start, _ := domain.DemandWindow(end, h.defaultWindow)
	if from != nil {
		start = *from
	}

	records, err := h.demand.History(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, records)
}

// Stats summarizes recent demand of a product
func (h *DemandHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	stats, err := h.demand.Stats(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Normalize rebuilds the demand series of one product
func (h *DemandHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.demand.Normalize(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
