package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrdered(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_directory.up.sql", names[0])
	for i := 1; i < len(names); i++ {
		require.Less(t, names[i-1], names[i])
	}
}

func TestAppendOnlyGuardsCoverHistoryTables(t *testing.T) {
	contents, err := migrationFiles.ReadFile("migrations/0004_append_only_guards.up.sql")
	require.NoError(t, err)
	sql := string(contents)
	for _, fragment := range []string{
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_audit_logs_block_update",
		"CREATE TRIGGER trg_audit_logs_block_delete",
		"CREATE TRIGGER trg_document_versions_block_update",
		"CREATE TRIGGER trg_document_versions_block_delete",
	} {
		require.True(t, strings.Contains(sql, fragment), "missing %q", fragment)
	}
}

func TestSequenceTableKeyedByBucket(t *testing.T) {
	contents, err := migrationFiles.ReadFile("migrations/0002_documents.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(contents), "PRIMARY KEY (prefix, department_code, year)")
	require.Contains(t, string(contents), "UNIQUE (document_id, version)")
	require.Contains(t, string(contents), "UNIQUE (document_id, round, approver_user_id)")
}
