package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/services/scheduler"
)

// SchedulerHandler exposes manual scheduler controls
type SchedulerHandler struct {
	scheduler *scheduler.Service
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService *scheduler.Service, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: schedulerService,
		logger:    logger,
	}
}

// TriggerHandler handles POST /api/scheduler/trigger, running a check
// cycle immediately instead of waiting for the next cron tick.
func (h *SchedulerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	h.logger.Info().Msg("Manual check cycle triggered via API")
	h.scheduler.TriggerNow()

	WriteSuccess(w, "Check cycle triggered")
}

// StatusHandler handles GET /api/scheduler/status
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
	})
}
