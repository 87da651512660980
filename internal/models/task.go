package models

import "time"

// TaskStatus is the lifecycle state of a republish task.
type TaskStatus string

const (
	TaskStatusDownloading    TaskStatus = "downloading"
	TaskStatusDownloaded     TaskStatus = "downloaded"
	TaskStatusDownloadFailed TaskStatus = "download_failed"
	TaskStatusUploading      TaskStatus = "uploading"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusUploadFailed   TaskStatus = "upload_failed"
)

// Terminal reports whether the status is final. Terminal tasks never
// transition again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusDownloadFailed, TaskStatusUploadFailed:
		return true
	}
	return false
}

// CanTransition reports whether a move from s to next is allowed by the
// task state machine:
//
//	downloading -> downloaded | download_failed
//	downloaded  -> uploading
//	uploading   -> completed | upload_failed
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusDownloading:
		return next == TaskStatusDownloaded || next == TaskStatusDownloadFailed
	case TaskStatusDownloaded:
		return next == TaskStatusUploading
	case TaskStatusUploading:
		return next == TaskStatusCompleted || next == TaskStatusUploadFailed
	}
	return false
}

// TaskRecord tracks one video through the download/upload pipeline.
type TaskRecord struct {
	ID             string     `json:"id" badgerhold:"key"`
	AccountID      string     `json:"account_id"`
	VideoID        string     `json:"video_id"`
	Title          string     `json:"title"`
	Status         TaskStatus `json:"status"`
	Progress       int        `json:"progress"` // Download progress 0-100
	Message        string     `json:"message,omitempty"`
	DestinationURL string     `json:"destination_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskPatch is a partial update to a TaskRecord. Nil fields are left
// untouched.
type TaskPatch struct {
	Status         *TaskStatus
	Progress       *int
	Message        *string
	DestinationURL *string
}
