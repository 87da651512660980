package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
)

// Manager aggregates the per-concern storages over one Badger database
type Manager struct {
	db           *BadgerDB
	logger       arbor.ILogger
	accounts     interfaces.AccountStorage
	fingerprints interfaces.FingerprintStorage
	tasks        interfaces.TaskStorage
}

// NewManager opens the database and wires up the storages
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:           db,
		logger:       logger,
		accounts:     NewAccountStorage(db, logger),
		fingerprints: NewFingerprintStorage(db, logger),
		tasks:        NewTaskStorage(db, logger),
	}, nil
}

// DB returns the underlying database connection
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// AccountStorage returns the account storage
func (m *Manager) AccountStorage() interfaces.AccountStorage {
	return m.accounts
}

// FingerprintStorage returns the fingerprint storage
func (m *Manager) FingerprintStorage() interfaces.FingerprintStorage {
	return m.fingerprints
}

// TaskStorage returns the task storage
func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.tasks
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
