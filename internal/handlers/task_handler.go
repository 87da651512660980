package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/services/tasks"
)

// TaskHandler serves task history endpoints
type TaskHandler struct {
	tasks  *tasks.Service
	logger arbor.ILogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *tasks.Service, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		tasks:  taskService,
		logger: logger,
	}
}

// ListByAccountHandler handles GET /api/tasks/{accountID}, returning
// the account's task history newest-first.
func (h *TaskHandler) ListByAccountHandler(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := h.tasks.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to list tasks")
		WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	WriteJSON(w, http.StatusOK, records)
}
