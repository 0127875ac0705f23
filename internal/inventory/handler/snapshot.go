package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// SnapshotHandler handles inventory state endpoints
type SnapshotHandler struct {
	snapshots *service.SnapshotService
	logger    *logger.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(snapshots *service.SnapshotService, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots: snapshots,
		logger:    log,
	}
}

// Get returns the current snapshot of a product
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snap)
}

// Recompute rebuilds a snapshot from the ledger
func (h *SnapshotHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Recompute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snap)
}

// UpdateThresholds replaces the operator thresholds of a product
func (h *SnapshotHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var update domain.ThresholdUpdate
	if err := decode(r, &update); err != nil {
		httputil.Error(w, err)
		return
	}

	snap, err := h.snapshots.UpdateThresholds(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snap)
}

// List lists snapshots
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.SnapshotFilter{
		State:      domain.StockState(r.URL.Query().Get("state")),
		Pagination: pagination(r),
	}

	var err error
	if filter.NeedsReorder, err = queryBool(r, "needs_reorder"); err != nil {
		httputil.Error(w, err)
		return
	}

	snaps, total, err := h.snapshots.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, snaps, httputil.NewMeta(filter.Page, filter.PerPage, total))
}
