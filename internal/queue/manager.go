package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
)

// ErrNoMessage is returned when the queue has no visible messages
var ErrNoMessage = errors.New("no messages in queue")

// Message is the internal structure stored in Badger for one queued job
type Message struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Body         json.RawMessage `json:"body"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAt    time.Time       `json:"visible_at"`
	ReceiveCount int             `json:"receive_count"`
	DedupKey     string          `json:"dedup_key,omitempty"`
}

// Decode unmarshals the message body into v
func (m *Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Body, v)
}

// Manager implements persistent named queues over a shared BadgerDB.
// Messages live at queue:<name>:msg:<id>; a visibility index at
// queue:<name>:index:<20-digit-ns-timestamp>:<id> keeps ready messages
// scannable in order. A dedup key at queue:<name>:dedup:<key> exists
// while its message is live and makes duplicate enqueues a no-op.
type Manager struct {
	db                *badger.DB
	logger            arbor.ILogger
	visibilityTimeout time.Duration
	maxReceive        int
	pollInterval      time.Duration
	concurrency       int
}

// NewManager creates a queue manager from configuration
func NewManager(db *badger.DB, logger arbor.ILogger, config *common.QueueConfig) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}

	visibilityTimeout := 5 * time.Minute
	if config.VisibilityTimeout != "" {
		d, err := time.ParseDuration(config.VisibilityTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid visibility_timeout: %w", err)
		}
		visibilityTimeout = d
	}

	pollInterval := time.Second
	if config.PollInterval != "" {
		d, err := time.ParseDuration(config.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval: %w", err)
		}
		pollInterval = d
	}

	maxReceive := config.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Manager{
		db:                db,
		logger:            logger,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		pollInterval:      pollInterval,
		concurrency:       concurrency,
	}, nil
}

// Enqueue adds a message to the named queue. When opts.DedupKey is set
// and another live message holds the same key, the enqueue is a no-op
// and the live message's ID is returned.
func (m *Manager) Enqueue(ctx context.Context, queue string, payload interface{}, opts interfaces.EnqueueOptions) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message body: %w", err)
	}

	msg := Message{
		ID:           uuid.New().String(),
		Queue:        queue,
		Body:         body,
		EnqueuedAt:   time.Now(),
		VisibleAt:    time.Now(), // Immediately visible
		ReceiveCount: 0,
		DedupKey:     opts.DedupKey,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	resultID := msg.ID
	err = m.db.Update(func(txn *badger.Txn) error {
		if msg.DedupKey != "" {
			dedupKey := m.dedupKey(queue, msg.DedupKey)
			item, err := txn.Get(dedupKey)
			if err == nil {
				// A live message already holds this key
				if verr := item.Value(func(val []byte) error {
					resultID = string(val)
					return nil
				}); verr != nil {
					return verr
				}
				return nil
			}
			if err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Set(dedupKey, []byte(msg.ID)); err != nil {
				return err
			}
		}

		if err := txn.Set(m.msgKey(queue, msg.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(queue, msg.VisibleAt, msg.ID), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	if resultID != msg.ID {
		m.logger.Debug().
			Str("queue", queue).
			Str("dedup_key", opts.DedupKey).
			Str("message_id", resultID).
			Msg("Enqueue suppressed by dedup key")
	}

	return resultID, nil
}

// Receive pulls the next visible message from the named queue, bumping
// its receive count and pushing its visibility out by the timeout.
// Messages past the max receive count are dropped.
func (m *Manager) Receive(ctx context.Context, queue string) (*Message, error) {
	var msg Message

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false
		var oldIndexKey []byte

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(queue, key)
			if err != nil {
				continue // Skip invalid keys
			}

			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is ready either
				break
			}

			item, err := txn.Get(m.msgKey(queue, id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Dangling index entry, clean it up
					if derr := txn.Delete(key); derr != nil {
						return derr
					}
					continue
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}

			if msg.ReceiveCount >= m.maxReceive {
				m.logger.Warn().
					Str("queue", queue).
					Str("message_id", id).
					Int("receive_count", msg.ReceiveCount).
					Msg("Dropping message after max receives")
				if err := m.deleteInTxn(txn, queue, &msg, key); err != nil {
					return err
				}
				continue
			}

			found = true
			oldIndexKey = key
			break
		}

		if !found {
			return ErrNoMessage
		}

		msg.ReceiveCount++
		msg.VisibleAt = time.Now().Add(m.visibilityTimeout)

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(queue, msg.ID), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(queue, msg.VisibleAt, msg.ID), []byte{})
	})
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// Delete removes a processed message along with its index and dedup
// entries. Deleting an already-deleted message is a no-op.
func (m *Manager) Delete(ctx context.Context, msg *Message) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(msg.Queue, msg.ID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already deleted
			}
			return err
		}

		var current Message
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}

		return m.deleteInTxn(txn, msg.Queue, &current, m.indexKey(msg.Queue, current.VisibleAt, current.ID))
	})
}

// Stats reports the number of stored messages per queue
func (m *Manager) Stats(queue string) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (m *Manager) deleteInTxn(txn *badger.Txn, queue string, msg *Message, indexKey []byte) error {
	if err := txn.Delete(indexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if msg.DedupKey != "" {
		if err := txn.Delete(m.dedupKey(queue, msg.DedupKey)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return txn.Delete(m.msgKey(queue, msg.ID))
}

// Key helpers

func (m *Manager) msgKey(queue, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queue, id))
}

func (m *Manager) dedupKey(queue, key string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dedup:%s", queue, key))
}

func (m *Manager) indexKey(queue string, visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so byte ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", queue, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(queue string, key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", queue)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	tsStr := suffix[:20]
	id := suffix[21:]

	var ts int64
	if _, err := fmt.Sscanf(tsStr, "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), id, nil
}
