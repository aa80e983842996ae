package testutil

import (
	"testing"

	"github.com/davidmoltin/procurement-workflows/pkg/database"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/stretchr/testify/require"
)

// RunMigrations applies the embedded schema to the test database
func RunMigrations(t *testing.T, db *TestDB) {
	t.Helper()
	require.NoError(t, database.RunMigrations(db.URL, logger.NewForTesting()), "Failed to run migrations")
}

// MigrateDown rolls back all migrations on the test database
func MigrateDown(t *testing.T, db *TestDB) {
	t.Helper()
	require.NoError(t, database.MigrateDown(db.URL), "Failed to rollback migrations")
}
