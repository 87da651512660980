package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
)

type testPayload struct {
	AccountID string `json:"account_id"`
	Value     int    `json:"value"`
}

func setupTestManager(t *testing.T, config *common.QueueConfig) (*Manager, func()) {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	if config == nil {
		config = &common.QueueConfig{
			PollInterval:      "10ms",
			Concurrency:       1,
			VisibilityTimeout: "100ms",
			MaxReceive:        3,
		}
	}

	mgr, err := NewManager(db, arbor.NewLogger(), config)
	require.NoError(t, err)

	return mgr, func() { db.Close() }
}

func TestEnqueueAndReceive(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	id, err := mgr.Enqueue(ctx, "check", testPayload{AccountID: "acct-1", Value: 7}, interfaces.EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msg, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, "check", msg.Queue)
	assert.Equal(t, 1, msg.ReceiveCount)

	var payload testPayload
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, "acct-1", payload.AccountID)
	assert.Equal(t, 7, payload.Value)
}

func TestReceiveEmptyQueue(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()

	_, err := mgr.Receive(context.Background(), "check")
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestReceiveOrdering(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	first, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := mgr.Enqueue(ctx, "check", testPayload{Value: 2}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	msg1, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)
	msg2, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)

	assert.Equal(t, first, msg1.ID)
	assert.Equal(t, second, msg2.ID)
}

func TestInFlightMessageInvisible(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	_, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	_, err = mgr.Receive(ctx, "check")
	require.NoError(t, err)

	// The message is in flight; a second receive finds nothing
	_, err = mgr.Receive(ctx, "check")
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestVisibilityTimeoutRedelivers(t *testing.T) {
	mgr, cleanup := setupTestManager(t, &common.QueueConfig{
		VisibilityTimeout: "50ms",
		MaxReceive:        3,
	})
	defer cleanup()
	ctx := context.Background()

	id, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	msg, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)
	assert.Equal(t, 1, msg.ReceiveCount)

	time.Sleep(80 * time.Millisecond)

	redelivered, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)
	assert.Equal(t, id, redelivered.ID)
	assert.Equal(t, 2, redelivered.ReceiveCount)
}

func TestMaxReceiveDropsMessage(t *testing.T) {
	mgr, cleanup := setupTestManager(t, &common.QueueConfig{
		VisibilityTimeout: "10ms",
		MaxReceive:        2,
	})
	defer cleanup()
	ctx := context.Background()

	_, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = mgr.Receive(ctx, "check")
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}

	// Third receive sees the exhausted message and drops it
	_, err = mgr.Receive(ctx, "check")
	assert.ErrorIs(t, err, ErrNoMessage)

	count, err := mgr.Stats("check")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDedupKeySuppressesDuplicate(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	opts := interfaces.EnqueueOptions{DedupKey: "check-acct-1"}

	first, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, opts)
	require.NoError(t, err)

	// Duplicate enqueue is a no-op returning the live message's ID
	second, err := mgr.Enqueue(ctx, "check", testPayload{Value: 2}, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := mgr.Stats("check")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDedupKeyReleasedOnDelete(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	opts := interfaces.EnqueueOptions{DedupKey: "check-acct-1"}

	first, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, opts)
	require.NoError(t, err)

	msg, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)
	require.NoError(t, mgr.Delete(ctx, msg))

	// The key is free again once the message is gone
	second, err := mgr.Enqueue(ctx, "check", testPayload{Value: 2}, opts)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDeleteIsIdempotent(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	_, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	msg, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, msg))
	require.NoError(t, mgr.Delete(ctx, msg))

	_, err = mgr.Receive(ctx, "check")
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestQueuesAreIsolated(t *testing.T) {
	mgr, cleanup := setupTestManager(t, nil)
	defer cleanup()
	ctx := context.Background()

	_, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	_, err = mgr.Receive(ctx, "fetch")
	assert.ErrorIs(t, err, ErrNoMessage)

	msg, err := mgr.Receive(ctx, "check")
	require.NoError(t, err)
	assert.Equal(t, "check", msg.Queue)
}

func TestWorkerPoolProcessesMessages(t *testing.T) {
	mgr, cleanup := setupTestManager(t, &common.QueueConfig{
		PollInterval:      "10ms",
		Concurrency:       2,
		VisibilityTimeout: "1s",
		MaxReceive:        3,
	})
	defer cleanup()
	ctx := context.Background()

	processed := make(chan string, 10)
	pool := NewWorkerPool(mgr, arbor.NewLogger())
	pool.RegisterHandler("check", func(ctx context.Context, msg *Message) error {
		processed <- msg.ID
		return nil
	})

	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	select {
	case got := <-processed:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process message in time")
	}

	// The processed message is deleted from the queue
	assert.Eventually(t, func() bool {
		count, err := mgr.Stats("check")
		return err == nil && count == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWorkerPoolSurvivesHandlerPanic(t *testing.T) {
	mgr, cleanup := setupTestManager(t, &common.QueueConfig{
		PollInterval:      "10ms",
		Concurrency:       1,
		VisibilityTimeout: "50ms",
		MaxReceive:        3,
	})
	defer cleanup()
	ctx := context.Background()

	var calls int32
	processed := make(chan string, 1)
	pool := NewWorkerPool(mgr, arbor.NewLogger())
	pool.RegisterHandler("check", func(ctx context.Context, msg *Message) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("nil feed entry")
		}
		processed <- msg.ID
		return nil
	})

	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := mgr.Enqueue(ctx, "check", testPayload{Value: 1}, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	// The panicking first attempt is treated as a handler failure; the
	// message is redelivered and succeeds on the second attempt
	select {
	case got := <-processed:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from handler panic")
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	assert.Eventually(t, func() bool {
		count, err := mgr.Stats("check")
		return err == nil && count == 0
	}, 2*time.Second, 20*time.Millisecond)
}
