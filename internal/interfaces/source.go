package interfaces

import (
	"context"

	"github.com/ternarybob/dragonfly/internal/models"
)

// SourceClient fetches an account's recent videos from the source
// platform. Implementations return videos in feed order, pinned entries
// flagged so the detector can ignore them.
type SourceClient interface {
	RecentVideos(ctx context.Context, accountID, secUID string) ([]models.DetectedVideo, error)
}
