package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// PurchaseOrderHandler handles purchase order endpoints
type PurchaseOrderHandler struct {
	orders *service.PurchaseOrderService
	logger *logger.Logger
}

// NewPurchaseOrderHandler creates a new purchase order handler
func NewPurchaseOrderHandler(orders *service.PurchaseOrderService, log *logger.Logger) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		orders: orders,
		logger: log,
	}
}

// Generate drafts an order from an optimization result
func (h *PurchaseOrderHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateOrderRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	po, err := h.orders.GenerateFromOptimization(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, po)
}

// List lists purchase orders
func (h *PurchaseOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		State:      domain.OrderState(q.Get("state")),
		SupplierID: q.Get("supplier_id"),
		ProductID:  q.Get("product_id"),
		Pagination: pagination(r),
	}

	orders, total, err := h.orders.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, orders, httputil.NewMeta(filter.Page, filter.PerPage, total))
}

// Get gets a purchase order with its lines
func (h *PurchaseOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	po, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, po)
}

// Confirm sends a draft order to the supplier
func (h *PurchaseOrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	po, err := h.orders.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, po)
}

// Cancel cancels an order that has not been received
func (h *PurchaseOrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	po, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, po)
}

// Receive books delivered goods into the ledger
func (h *PurchaseOrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req service.ReceiveOrderRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.orders.Receive(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
