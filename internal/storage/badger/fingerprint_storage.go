package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// FingerprintStorage implements the FingerprintStorage interface for Badger
type FingerprintStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFingerprintStorage creates a new FingerprintStorage instance
func NewFingerprintStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FingerprintStorage {
	return &FingerprintStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the fingerprint for an account. Absent and partial
// records both return ErrFingerprintNotFound so the detector treats a
// half-written marker as a first run.
func (s *FingerprintStorage) Get(ctx context.Context, accountID string) (*models.VideoFingerprint, error) {
	var fp models.VideoFingerprint
	err := s.db.Store().Get(accountID, &fp)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrFingerprintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	if !fp.Valid() {
		s.logger.Warn().Str("account_id", accountID).Msg("Discarding partial fingerprint record")
		return nil, interfaces.ErrFingerprintNotFound
	}
	return &fp, nil
}

// Put stores the fingerprint, overwriting any previous value
func (s *FingerprintStorage) Put(ctx context.Context, fp *models.VideoFingerprint) error {
	fp.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(fp.AccountID, fp); err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return nil
}

// Delete removes the fingerprint for an account
func (s *FingerprintStorage) Delete(ctx context.Context, accountID string) error {
	err := s.db.Store().Delete(accountID, &models.VideoFingerprint{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete fingerprint: %w", err)
	}
	return nil
}
