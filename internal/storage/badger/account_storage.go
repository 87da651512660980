package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AccountStorage implements the AccountStorage interface for Badger
type AccountStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAccountStorage creates a new AccountStorage instance
func NewAccountStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AccountStorage {
	return &AccountStorage{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new account. Fails if the ID is already taken.
func (s *AccountStorage) Create(ctx context.Context, account *models.Account) error {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := s.db.Store().Insert(account.ID, account)
	if err == badgerhold.ErrKeyExists {
		return interfaces.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Debug().Str("account_id", account.ID).Msg("Account created")
	return nil
}

// Get retrieves an account by ID
func (s *AccountStorage) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := s.db.Store().Get(id, &account)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// List returns all tracked accounts, oldest first
func (s *AccountStorage) List(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	if err := s.db.Store().Find(&accounts, nil); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// Update replaces an existing account record
func (s *AccountStorage) Update(ctx context.Context, account *models.Account) error {
	existing, err := s.Get(ctx, account.ID)
	if err != nil {
		return err
	}

	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now()

	if err := s.db.Store().Update(account.ID, account); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Delete removes an account
func (s *AccountStorage) Delete(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Account{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	s.logger.Debug().Str("account_id", id).Msg("Account deleted")
	return nil
}

// SetRefreshToken stores a destination OAuth refresh token for an account
func (s *AccountStorage) SetRefreshToken(ctx context.Context, id string, token string) error {
	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	account.RefreshToken = token
	account.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, account); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.logger.Debug().Str("account_id", id).Msg("Refresh token updated")
	return nil
}
