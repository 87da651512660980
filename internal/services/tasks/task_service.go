package tasks

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
)

// Service owns task records and publishes every change on the event
// bus so WebSocket observers stay in sync with the pipeline.
type Service struct {
	storage      interfaces.TaskStorage
	eventService interfaces.EventService
	logger       arbor.ILogger
}

// NewService creates a new task service
func NewService(storage interfaces.TaskStorage, eventService interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		storage:      storage,
		eventService: eventService,
		logger:       logger,
	}
}

// Create stores a new task record and announces its initial status
func (s *Service) Create(ctx context.Context, task *models.TaskRecord) error {
	if err := s.storage.Create(ctx, task); err != nil {
		return err
	}
	s.publishTaskUpdate(ctx, task)
	return nil
}

// UpdateStatus transitions a task to a new status with an optional
// human-readable message, then announces the change.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, message string) (*models.TaskRecord, error) {
	task, err := s.storage.Patch(ctx, id, models.TaskPatch{
		Status:  &status,
		Message: &message,
	})
	if err != nil {
		return nil, err
	}
	s.publishTaskUpdate(ctx, task)
	return task, nil
}

// Complete marks a task completed with its destination URL
func (s *Service) Complete(ctx context.Context, id string, destinationURL string, message string) (*models.TaskRecord, error) {
	status := models.TaskStatusCompleted
	task, err := s.storage.Patch(ctx, id, models.TaskPatch{
		Status:         &status,
		Message:        &message,
		DestinationURL: &destinationURL,
	})
	if err != nil {
		return nil, err
	}
	s.publishTaskUpdate(ctx, task)
	return task, nil
}

// UpdateProgress records download progress and announces it. Storage
// keeps progress monotonic; the caller only reports increases. Delivery
// is synchronous so observers see progress as a non-decreasing sequence.
func (s *Service) UpdateProgress(ctx context.Context, id string, progress int) error {
	task, err := s.storage.Patch(ctx, id, models.TaskPatch{
		Progress: &progress,
	})
	if err != nil {
		return err
	}

	return s.eventService.PublishSync(ctx, interfaces.Event{
		Type: interfaces.EventDownloadProgress,
		Payload: map[string]interface{}{
			"task_id":  task.ID,
			"progress": task.Progress,
		},
	})
}

// Get returns a task record by ID
func (s *Service) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	return s.storage.Get(ctx, id)
}

// ListByAccount returns the account's task history, newest first
func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]*models.TaskRecord, error) {
	return s.storage.ListByAccount(ctx, accountID)
}

// publishTaskUpdate announces a status change. Synchronous delivery
// keeps status events ordered behind any progress events already sent.
func (s *Service) publishTaskUpdate(ctx context.Context, task *models.TaskRecord) {
	err := s.eventService.PublishSync(ctx, interfaces.Event{
		Type: interfaces.EventTaskUpdate,
		Payload: map[string]interface{}{
			"task_id":    task.ID,
			"account_id": task.AccountID,
			"video_id":   task.VideoID,
			"status":     string(task.Status),
			"message":    task.Message,
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to publish task update")
	}
}
