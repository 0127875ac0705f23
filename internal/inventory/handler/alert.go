package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	alerts *service.AlertService
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: log,
	}
}

// List lists alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AlertFilter{
		ProductID:  q.Get("product_id"),
		Type:       domain.AlertType(q.Get("type")),
		Severity:   domain.Severity(q.Get("severity")),
		State:      domain.AlertState(q.Get("state")),
		Pagination: pagination(r),
	}

	open, err := queryBool(r, "open")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	filter.OpenOnly = open != nil && *open

	alerts, total, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, httputil.NewMeta(filter.Page, filter.PerPage, total))
}

// Get gets an alert by ID
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// Transition applies an operator action to an alert
func (h *AlertHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req service.TransitionAlertRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	alert, err := h.alerts.Transition(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}
