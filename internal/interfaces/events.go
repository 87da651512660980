package interfaces

import "context"

// EventType identifies an event on the in-process bus.
type EventType string

const (
	// EventTaskUpdate fires on every task status change.
	// Payload: map with task_id, account_id, status, message, video_id.
	EventTaskUpdate EventType = "task_update"

	// EventDownloadProgress fires when a download's integer percentage
	// increases. Payload: map with task_id, progress.
	EventDownloadProgress EventType = "download_progress"
)

// Event is a message published on the event bus.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event) error

// EventService is an in-process pub/sub bus decoupling the pipeline
// from notification transports.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
