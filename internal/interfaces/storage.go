package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/dragonfly/internal/models"
)

// Sentinel errors shared by storage implementations.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrFingerprintNotFound = errors.New("fingerprint not found")
	ErrTaskNotFound        = errors.New("task not found")
)

// AccountStorage persists tracked accounts and their destination
// credentials. The pipeline reads accounts; only handlers and the
// publisher's token-rotation path write them.
type AccountStorage interface {
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error

	// SetRefreshToken stores a destination OAuth refresh token for an
	// account. Used by the OAuth callback and by rotated-token capture.
	SetRefreshToken(ctx context.Context, id string, token string) error
}

// FingerprintStorage persists the per-account last-seen video marker.
type FingerprintStorage interface {
	// Get returns ErrFingerprintNotFound for absent or partial records.
	Get(ctx context.Context, accountID string) (*models.VideoFingerprint, error)
	Put(ctx context.Context, fp *models.VideoFingerprint) error
	Delete(ctx context.Context, accountID string) error
}

// TaskStorage persists task records plus a per-account capped
// newest-first index of task IDs.
type TaskStorage interface {
	Create(ctx context.Context, task *models.TaskRecord) error
	Get(ctx context.Context, id string) (*models.TaskRecord, error)
	Patch(ctx context.Context, id string, patch models.TaskPatch) (*models.TaskRecord, error)
	// ListByAccount returns tasks newest-first. IDs in the index with no
	// backing record are skipped.
	ListByAccount(ctx context.Context, accountID string) ([]*models.TaskRecord, error)
}

// StorageManager aggregates the per-concern storages over one database.
type StorageManager interface {
	AccountStorage() AccountStorage
	FingerprintStorage() FingerprintStorage
	TaskStorage() TaskStorage
	Close() error
}
