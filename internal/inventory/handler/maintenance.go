package handler

import (
	"net/http"

	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// MaintenanceHandler runs the batch jobs on demand. The scheduler runs the
// same jobs periodically.
type MaintenanceHandler struct {
	demand  *service.DemandService
	cleanup *service.CleanupService
	alerts  *service.AlertService
	logger  *logger.Logger
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(demand *service.DemandService, cleanup *service.CleanupService, alerts *service.AlertService, log *logger.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		demand:  demand,
		cleanup: cleanup,
		alerts:  alerts,
		logger:  log,
	}
}

// Normalize rebuilds the demand series of every active product
func (h *MaintenanceHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.respond(w, r, "normalize")(h.demand.NormalizeAll(r.Context(), window))
}

// Cleanup purges expired derived data
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "cleanup")(h.cleanup.Run(r.Context()))
}

// Scan evaluates every alert rule for every product
func (h *MaintenanceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "scan")(h.alerts.Scan(r.Context()))
}

func (h *MaintenanceHandler) respond(w http.ResponseWriter, r *http.Request, job string) func(*service.BatchReport, error) {
	return func(report *service.BatchReport, err error) {
		if err != nil {
			httputil.Error(w, err)
			return
		}
		h.logger.WithRequestID(httputil.GetRequestID(r.Context())).Info().
			Str("job", job).
			Int("processed", report.Processed).
			Int("failed", report.Failed()).
			Msg("maintenance job triggered")
		httputil.JSON(w, http.StatusOK, report)
	}
}
