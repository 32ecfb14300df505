package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_initial_schema.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestMigrationFilesCreateCoreTables(t *testing.T) {
	body, err := migrationFiles.ReadFile("migrations/001_initial_schema.sql")
	require.NoError(t, err)

	for _, table := range []string{
		"contacts", "contact_groups", "contact_group_members", "templates",
		"bulk_sends", "messages", "scheduled_messages", "webhooks",
	} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
