package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
)

func TestSubscribeNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.Error(t, svc.Subscribe(interfaces.EventTaskUpdate, nil))
}

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	var count int32
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Subscribe(interfaces.EventTaskUpdate, func(ctx context.Context, event interfaces.Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		}))
	}

	require.NoError(t, svc.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventTaskUpdate,
		Payload: map[string]interface{}{"task_id": "task-1"},
	}))

	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestPublishSyncReportsHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, svc.Subscribe(interfaces.EventTaskUpdate, func(ctx context.Context, event interfaces.Event) error {
		return fmt.Errorf("handler boom")
	}))

	err := svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventTaskUpdate})
	assert.Error(t, err)
}

func TestPublishAsyncDelivers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	received := make(chan interfaces.Event, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventDownloadProgress, func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, svc.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventDownloadProgress,
		Payload: map[string]interface{}{"task_id": "task-1", "progress": 42},
	}))

	select {
	case event := <-received:
		payload := event.Payload.(map[string]interface{})
		assert.Equal(t, "task-1", payload["task_id"])
		assert.Equal(t, 42, payload["progress"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishUnknownTypeIsNoop(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: "nobody-listens"}))
}

func TestCloseDropsSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	ctx := context.Background()

	var count int32
	require.NoError(t, svc.Subscribe(interfaces.EventTaskUpdate, func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	}))

	require.NoError(t, svc.Close())
	require.NoError(t, svc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventTaskUpdate}))

	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}
