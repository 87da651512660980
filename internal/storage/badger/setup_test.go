package badger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
)

// setupTestDB opens a throwaway Badger database in a temp directory
func setupTestDB(t *testing.T) (*BadgerDB, func()) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)

	return db, func() { db.Close() }
}
