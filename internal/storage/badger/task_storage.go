package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// maxTasksPerAccount caps the per-account task history. The oldest
// entry is evicted when a new task pushes the list over the cap.
const maxTasksPerAccount = 100

// accountTaskIndex holds the newest-first task ID list for one account
type accountTaskIndex struct {
	AccountID string   `badgerhold:"key"`
	TaskIDs   []string `json:"task_ids"`
}

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

// Create stores a new task record and prepends its ID to the account's
// task index, evicting the oldest entries beyond the cap.
//
// Create is an upsert: a redelivered fetch job re-creates its task under
// the same ID, replacing a download_failed record with a fresh
// downloading one. That retry path is the one place a terminal record is
// replaced; Patch still rejects transitions out of terminal states.
func (s *TaskStorage) Create(ctx context.Context, task *models.TaskRecord) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to store task: %w", err)
	}

	var index accountTaskIndex
	err := s.db.Store().Get(task.AccountID, &index)
	if err == badgerhold.ErrNotFound {
		index = accountTaskIndex{AccountID: task.AccountID}
	} else if err != nil {
		return fmt.Errorf("failed to load task index: %w", err)
	}

	// A retried job re-creates its task under the same ID; drop any
	// previous index entry before prepending.
	ids := make([]string, 0, len(index.TaskIDs)+1)
	ids = append(ids, task.ID)
	for _, id := range index.TaskIDs {
		if id != task.ID {
			ids = append(ids, id)
		}
	}
	index.TaskIDs = ids
	if len(index.TaskIDs) > maxTasksPerAccount {
		evicted := index.TaskIDs[maxTasksPerAccount:]
		index.TaskIDs = index.TaskIDs[:maxTasksPerAccount]
		for _, id := range evicted {
			if err := s.db.Store().Delete(id, &models.TaskRecord{}); err != nil && err != badgerhold.ErrNotFound {
				s.logger.Warn().Err(err).Str("task_id", id).Msg("Failed to delete evicted task record")
			}
		}
	}

	if err := s.db.Store().Upsert(task.AccountID, &index); err != nil {
		return fmt.Errorf("failed to update task index: %w", err)
	}

	s.logger.Debug().
		Str("task_id", task.ID).
		Str("account_id", task.AccountID).
		Str("status", string(task.Status)).
		Msg("Task created")

	return nil
}

// Get retrieves a task record by ID
func (s *TaskStorage) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	var task models.TaskRecord
	err := s.db.Store().Get(id, &task)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Patch applies a partial update to a task record. Status changes must
// follow the task state machine; terminal tasks reject further status
// changes. Progress never decreases.
func (s *TaskStorage) Patch(ctx context.Context, id string, patch models.TaskPatch) (*models.TaskRecord, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil && *patch.Status != task.Status {
		if !task.Status.CanTransition(*patch.Status) {
			return nil, fmt.Errorf("invalid task transition %s -> %s for task %s", task.Status, *patch.Status, id)
		}
		task.Status = *patch.Status
	}
	if patch.Progress != nil && *patch.Progress > task.Progress {
		progress := *patch.Progress
		if progress > 100 {
			progress = 100
		}
		task.Progress = progress
	}
	if patch.Message != nil {
		task.Message = *patch.Message
	}
	if patch.DestinationURL != nil {
		task.DestinationURL = *patch.DestinationURL
	}
	task.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return task, nil
}

// ListByAccount returns the account's tasks newest-first. Index entries
// with no backing record (evicted mid-read) are skipped.
func (s *TaskStorage) ListByAccount(ctx context.Context, accountID string) ([]*models.TaskRecord, error) {
	var index accountTaskIndex
	err := s.db.Store().Get(accountID, &index)
	if err == badgerhold.ErrNotFound {
		return []*models.TaskRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task index: %w", err)
	}

	tasks := make([]*models.TaskRecord, 0, len(index.TaskIDs))
	for _, id := range index.TaskIDs {
		task, err := s.Get(ctx, id)
		if err == interfaces.ErrTaskNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}
