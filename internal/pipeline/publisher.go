package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/ternarybob/dragonfly/internal/queue"
	"github.com/ternarybob/dragonfly/internal/services/tasks"
)

// Publisher consumes publish jobs: it uploads the downloaded file to
// the destination platform under the owning account's credential and
// records the outcome on the task.
type Publisher struct {
	tasks    *tasks.Service
	accounts interfaces.AccountStorage
	uploader interfaces.DestinationUploader
	logger   arbor.ILogger
}

// NewPublisher creates a new publisher stage
func NewPublisher(taskService *tasks.Service, accounts interfaces.AccountStorage, uploader interfaces.DestinationUploader, logger arbor.ILogger) *Publisher {
	return &Publisher{
		tasks:    taskService,
		accounts: accounts,
		uploader: uploader,
		logger:   logger,
	}
}

// Handle processes one publish job
func (p *Publisher) Handle(ctx context.Context, msg *queue.Message) error {
	var job models.PublishJob
	if err := msg.Decode(&job); err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Invalid publish job payload")
		return nil // Poison message, do not retry
	}

	return p.Publish(ctx, job)
}

// Publish uploads one downloaded video. Failures before the upload is
// attempted mark the task upload_failed and propagate, so the queue
// retries up to max receives. Once an upload has been attempted the
// outcome lives on the record and the message is consumed either way:
// a blind retry risks a duplicate video on the destination.
func (p *Publisher) Publish(ctx context.Context, job models.PublishJob) error {
	if _, err := p.tasks.UpdateStatus(ctx, job.TaskID, models.TaskStatusUploading, "Upload started"); err != nil {
		return fmt.Errorf("failed to mark task uploading: %w", err)
	}

	account, err := p.accounts.Get(ctx, job.AccountID)
	if err != nil {
		p.failTask(ctx, job.TaskID, fmt.Sprintf("account lookup failed: %v", err))
		return fmt.Errorf("account lookup failed: %w", err)
	}
	if !account.Eligible() {
		p.failTask(ctx, job.TaskID, "account has no destination credential")
		return fmt.Errorf("account %s has no destination credential", job.AccountID)
	}

	url, err := p.uploader.Upload(ctx, interfaces.UploadRequest{
		FilePath:     job.FilePath,
		Title:        job.Title,
		Description:  job.Title,
		RefreshToken: account.RefreshToken,
		OnTokenRotated: func(newToken string) {
			// Best effort: the upload already succeeded, a persistence
			// failure only costs the next refresh.
			if err := p.accounts.SetRefreshToken(ctx, account.ID, newToken); err != nil {
				p.logger.Warn().
					Err(err).
					Str("account_id", account.ID).
					Msg("Failed to persist rotated refresh token")
			} else {
				p.logger.Info().
					Str("account_id", account.ID).
					Msg("Rotated refresh token persisted")
			}
		},
	})
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("task_id", job.TaskID).
			Str("account_id", job.AccountID).
			Msg("Upload failed")
		p.failTask(ctx, job.TaskID, err.Error())
		return nil
	}

	if _, err := p.tasks.Complete(ctx, job.TaskID, url, "Upload completed"); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	p.logger.Info().
		Str("task_id", job.TaskID).
		Str("account_id", job.AccountID).
		Str("url", url).
		Msg("Video published")

	return nil
}

func (p *Publisher) failTask(ctx context.Context, taskID, message string) {
	if _, err := p.tasks.UpdateStatus(ctx, taskID, models.TaskStatusUploadFailed, message); err != nil {
		p.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to mark task upload_failed")
	}
}
