package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
)

// Handler processes a single queue message. A returned error leaves the
// message in flight; it becomes visible again after the visibility
// timeout and is retried until the max receive count.
type Handler func(ctx context.Context, msg *Message) error

// WorkerPool runs N workers per registered queue, polling the queue
// manager and dispatching messages to the queue's handler.
type WorkerPool struct {
	queueMgr *Manager
	handlers map[string]Handler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr *Manager, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queueMgr: queueMgr,
		handlers: make(map[string]Handler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers the handler for a queue
func (wp *WorkerPool) RegisterHandler(queue string, handler Handler) {
	wp.handlers[queue] = handler
	wp.logger.Debug().
		Str("queue", queue).
		Msg("Queue handler registered")
}

// Start starts the worker goroutines for every registered queue
func (wp *WorkerPool) Start() error {
	for queue := range wp.handlers {
		wp.logger.Info().
			Str("queue", queue).
			Int("concurrency", wp.queueMgr.concurrency).
			Msg("Starting queue workers")

		for i := 0; i < wp.queueMgr.concurrency; i++ {
			go wp.worker(queue, i)
		}
	}

	return nil
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

// worker is the main worker loop that processes messages for one queue
func (wp *WorkerPool) worker(queue string, workerID int) {
	// Stagger worker starts to reduce database lock contention
	staggerDelay := (wp.queueMgr.pollInterval / time.Duration(wp.queueMgr.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Str("queue", queue).
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.queueMgr.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Str("queue", queue).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(queue, workerID); err != nil && err != ErrNoMessage {
				wp.logger.Warn().
					Err(err).
					Str("queue", queue).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// runHandler invokes the queue handler, converting a panic into a
// handler failure so one bad job cannot take down the worker goroutine.
// The message stays in flight and retries up to max receives.
func (wp *WorkerPool) runHandler(handler Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Str("queue", msg.Queue).
				Str("message_id", msg.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in queue handler")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(wp.ctx, msg)
}

// processMessage receives and processes a single message
func (wp *WorkerPool) processMessage(queue string, workerID int) error {
	msg, err := wp.queueMgr.Receive(wp.ctx, queue)
	if err != nil {
		return err
	}

	handler := wp.handlers[queue]

	wp.logger.Debug().
		Str("queue", queue).
		Str("message_id", msg.ID).
		Int("receive_count", msg.ReceiveCount).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := wp.runHandler(handler, msg)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("queue", queue).
			Str("message_id", msg.ID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")

		// Leave the message in flight; it becomes visible again after
		// the visibility timeout and retries up to max receives.
		return handlerErr
	}

	wp.logger.Info().
		Str("queue", queue).
		Str("message_id", msg.ID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job completed")

	if err := wp.queueMgr.Delete(wp.ctx, msg); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to delete message after successful processing")
		return err
	}

	return nil
}
