package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/ternarybob/dragonfly/internal/queue"
)

// Detector consumes check jobs: it compares the account's feed against
// the stored fingerprint and enqueues a fetch job when a new video
// appears.
type Detector struct {
	fingerprints interfaces.FingerprintStorage
	source       interfaces.SourceClient
	enqueuer     interfaces.Enqueuer
	logger       arbor.ILogger
}

// NewDetector creates a new detector stage
func NewDetector(fingerprints interfaces.FingerprintStorage, source interfaces.SourceClient, enqueuer interfaces.Enqueuer, logger arbor.ILogger) *Detector {
	return &Detector{
		fingerprints: fingerprints,
		source:       source,
		enqueuer:     enqueuer,
		logger:       logger,
	}
}

// Handle processes one check job
func (d *Detector) Handle(ctx context.Context, msg *queue.Message) error {
	var job models.CheckJob
	if err := msg.Decode(&job); err != nil {
		d.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Invalid check job payload")
		return nil // Poison message, do not retry
	}

	return d.Check(ctx, job)
}

// Check polls one account's feed and enqueues a fetch job for a newly
// published video. Source errors propagate so the queue retries the
// check.
func (d *Detector) Check(ctx context.Context, job models.CheckJob) error {
	fingerprint, err := d.fingerprints.Get(ctx, job.AccountID)
	if err != nil && err != interfaces.ErrFingerprintNotFound {
		return fmt.Errorf("failed to load fingerprint: %w", err)
	}

	videos, err := d.source.RecentVideos(ctx, job.AccountID, job.SecUID)
	if err != nil {
		return fmt.Errorf("source query failed for account %s: %w", job.AccountID, err)
	}

	// Pinned videos sit at the top of the feed regardless of age; the
	// first non-pinned entry is the most recent upload.
	var latest *models.DetectedVideo
	for i := range videos {
		if !videos[i].IsPinned {
			latest = &videos[i]
			break
		}
	}
	if latest == nil {
		d.logger.Debug().Str("account_id", job.AccountID).Msg("No videos in feed")
		return nil
	}

	if !latest.NewerThan(fingerprint) {
		d.logger.Debug().
			Str("account_id", job.AccountID).
			Str("video_id", latest.VideoID).
			Msg("No new video")
		return nil
	}

	// Persist the fingerprint before the fetch enqueue: a crash between
	// the two loses one video rather than reprocessing it forever.
	if err := d.fingerprints.Put(ctx, &models.VideoFingerprint{
		AccountID:   job.AccountID,
		VideoID:     latest.VideoID,
		PublishedAt: latest.PublishedAt,
	}); err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}

	if latest.MediaURL == "" {
		d.logger.Warn().
			Str("account_id", job.AccountID).
			Str("video_id", latest.VideoID).
			Msg("New video has no media URL, skipping fetch")
		return nil
	}

	fetchJob := models.FetchJob{
		AccountID:   latest.AccountID,
		VideoID:     latest.VideoID,
		Title:       latest.Title,
		MediaURL:    latest.MediaURL,
		LikeCount:   latest.LikeCount,
		PublishedAt: latest.PublishedAt,
	}
	if _, err := d.enqueuer.Enqueue(ctx, models.QueueFetch, fetchJob, interfaces.EnqueueOptions{}); err != nil {
		return fmt.Errorf("failed to enqueue fetch job: %w", err)
	}

	d.logger.Info().
		Str("account_id", job.AccountID).
		Str("video_id", latest.VideoID).
		Str("title", latest.Title).
		Msg("New video detected")

	return nil
}
