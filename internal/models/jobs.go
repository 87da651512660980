package models

import "time"

// Queue names for the three pipeline stages.
const (
	QueueCheck   = "check"
	QueueFetch   = "fetch"
	QueuePublish = "publish"
)

// CheckJob asks the detector to poll one account for new videos.
type CheckJob struct {
	AccountID string `json:"account_id"`
	SecUID    string `json:"sec_uid"`
}

// FetchJob asks the fetcher to download one detected video.
type FetchJob struct {
	AccountID   string    `json:"account_id"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	MediaURL    string    `json:"media_url"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
}

// PublishJob asks the publisher to upload a downloaded video file.
type PublishJob struct {
	TaskID    string `json:"task_id"`
	AccountID string `json:"account_id"`
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	FilePath  string `json:"file_path"`
}
