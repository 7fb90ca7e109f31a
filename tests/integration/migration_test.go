//go:build integration

package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/infrastructure/migration"
	"github.com/feedsync/backend/migrations"
)

func TestMigrations_UpDownUp(t *testing.T) {
	tdb := NewTestDB(t)

	m, err := migration.NewEmbedded(tdb.SqlDB, zap.NewNop())
	require.NoError(t, err)

	v, _, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Up())
	entries, err := migration.ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, entries[len(entries)-1].Version, v)

	for _, table := range []string{"tenants", "people", "organizations", "attribute_definitions", "importer_configs", "feedback_records"} {
		assert.True(t, tdb.DB.Migrator().HasTable(table), table)
	}

	require.NoError(t, m.Down())
	assert.False(t, tdb.DB.Migrator().HasTable("people"))

	// up again is clean
	require.NoError(t, m.Up())
	assert.True(t, tdb.DB.Migrator().HasTable("people"))
	require.NoError(t, m.Up())
}
