package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// MovementHandler handles ledger endpoints
type MovementHandler struct {
	ledger *service.LedgerService
	logger *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(ledger *service.LedgerService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		ledger: ledger,
		logger: log,
	}
}

// Append records a new movement
func (h *MovementHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req service.AppendMovementRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	m, err := h.ledger.Append(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, m)
}

// Void voids a movement by appending its reversal
func (h *MovementHandler) Void(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.VoidMovementRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	m, err := h.ledger.Void(r.Context(), id, req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, m)
}

// Get gets a movement by ID
func (h *MovementHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, m)
}

// List lists movements, newest first
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MovementFilter{
		ProductID:  q.Get("product_id"),
		Kind:       domain.MovementKind(q.Get("kind")),
		Pagination: pagination(r),
	}

	var err error
	if filter.From, err = queryTime(r, "from"); err != nil {
		httputil.Error(w, err)
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		httputil.Error(w, err)
		return
	}
	voided, err := queryBool(r, "include_voided")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	filter.IncludeVoided = voided != nil && *voided

	movements, total, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, httputil.NewMeta(filter.Page, filter.PerPage, total))
}
