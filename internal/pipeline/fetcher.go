package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/ternarybob/dragonfly/internal/queue"
	"github.com/ternarybob/dragonfly/internal/services/tasks"
)

// Fetcher consumes fetch jobs: it streams the video file to disk,
// tracking progress on the task record, then hands off to the publish
// queue. The fetch-stage job ID doubles as the task ID so one video
// run is traceable across stages.
type Fetcher struct {
	tasks        *tasks.Service
	enqueuer     interfaces.Enqueuer
	httpClient   *http.Client
	downloadsDir string
	userAgent    string
	logger       arbor.ILogger
}

// NewFetcher creates a new fetcher stage
func NewFetcher(taskService *tasks.Service, enqueuer interfaces.Enqueuer, httpClient *http.Client, downloadsDir, userAgent string, logger arbor.ILogger) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		tasks:        taskService,
		enqueuer:     enqueuer,
		httpClient:   httpClient,
		downloadsDir: downloadsDir,
		userAgent:    userAgent,
		logger:       logger,
	}
}

// Handle processes one fetch job
func (f *Fetcher) Handle(ctx context.Context, msg *queue.Message) error {
	var job models.FetchJob
	if err := msg.Decode(&job); err != nil {
		f.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Invalid fetch job payload")
		return nil // Poison message, do not retry
	}

	return f.Fetch(ctx, msg.ID, job)
}

// Fetch downloads one video to its deterministic path. A file already
// present from an earlier run skips the network fetch entirely: the
// task is created directly in the downloaded state and still proceeds
// to publish.
func (f *Fetcher) Fetch(ctx context.Context, taskID string, job models.FetchJob) error {
	path := common.DownloadFilePath(f.downloadsDir, job.AccountID, job.VideoID, job.Title, job.LikeCount)

	if _, err := os.Stat(path); err == nil {
		f.logger.Info().
			Str("task_id", taskID).
			Str("path", path).
			Msg("Video file already downloaded, skipping fetch")

		if err := f.tasks.Create(ctx, &models.TaskRecord{
			ID:        taskID,
			AccountID: job.AccountID,
			VideoID:   job.VideoID,
			Title:     job.Title,
			Status:    models.TaskStatusDownloaded,
			Progress:  100,
			Message:   "File already present",
		}); err != nil {
			return err
		}
		return f.enqueuePublish(ctx, taskID, job, path)
	}

	if err := f.tasks.Create(ctx, &models.TaskRecord{
		ID:        taskID,
		AccountID: job.AccountID,
		VideoID:   job.VideoID,
		Title:     job.Title,
		Status:    models.TaskStatusDownloading,
		Progress:  0,
		Message:   "Download started",
	}); err != nil {
		return err
	}

	if err := f.download(ctx, taskID, job.MediaURL, path); err != nil {
		if _, uerr := f.tasks.UpdateStatus(ctx, taskID, models.TaskStatusDownloadFailed, err.Error()); uerr != nil {
			f.logger.Warn().Err(uerr).Str("task_id", taskID).Msg("Failed to mark task download_failed")
		}
		return err
	}

	if _, err := f.tasks.UpdateStatus(ctx, taskID, models.TaskStatusDownloaded, "Download completed"); err != nil {
		return err
	}

	return f.enqueuePublish(ctx, taskID, job, path)
}

// download streams the media URL to path, reporting progress each time
// the integer percentage increases. A partial file is removed on error.
func (f *Fetcher) download(ctx context.Context, taskID, mediaURL, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download request returned status %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create video file: %w", err)
	}

	total := resp.ContentLength
	var written int64
	lastPercent := 0
	buf := make([]byte, 32*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				file.Close()
				os.Remove(path)
				return fmt.Errorf("failed to write video file: %w", werr)
			}
			written += int64(n)

			// Unknown content length gives no progress until completion
			if total > 0 {
				percent := int(written * 100 / total)
				if percent > lastPercent {
					lastPercent = percent
					if perr := f.tasks.UpdateProgress(ctx, taskID, percent); perr != nil {
						f.logger.Warn().Err(perr).Str("task_id", taskID).Msg("Failed to record download progress")
					}
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			file.Close()
			os.Remove(path)
			return fmt.Errorf("download stream failed: %w", readErr)
		}
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close video file: %w", err)
	}

	if lastPercent < 100 {
		if perr := f.tasks.UpdateProgress(ctx, taskID, 100); perr != nil {
			f.logger.Warn().Err(perr).Str("task_id", taskID).Msg("Failed to record download progress")
		}
	}

	f.logger.Info().
		Str("task_id", taskID).
		Str("path", path).
		Int64("bytes", written).
		Msg("Video downloaded")

	return nil
}

func (f *Fetcher) enqueuePublish(ctx context.Context, taskID string, job models.FetchJob, path string) error {
	publishJob := models.PublishJob{
		TaskID:    taskID,
		AccountID: job.AccountID,
		VideoID:   job.VideoID,
		Title:     job.Title,
		FilePath:  path,
	}
	if _, err := f.enqueuer.Enqueue(ctx, models.QueuePublish, publishJob, interfaces.EnqueueOptions{}); err != nil {
		return fmt.Errorf("failed to enqueue publish job: %w", err)
	}
	return nil
}
