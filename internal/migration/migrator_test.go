package migration

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsComplete(t *testing.T) {
	entries, err := fs.ReadDir(postgresFS, "migrations/postgres")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", name)
		}
	}

	// 每个 up 都有对应的 down
	assert.Equal(t, ups, downs)

	names := make([]string, 0, len(ups))
	for name := range ups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		assert.True(t, strings.HasPrefix(name, "0000"), name)
	}
}

func TestEmbeddedMigrationsCoverCoreTables(t *testing.T) {
	wantTables := []string{"provider_credentials", "provider_logs", "events"}

	var combined strings.Builder
	err := fs.WalkDir(postgresFS, "migrations/postgres", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		data, readErr := fs.ReadFile(postgresFS, path)
		if readErr != nil {
			return readErr
		}
		combined.Write(data)
		return nil
	})
	require.NoError(t, err)

	sql := combined.String()
	for _, table := range wantTables {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table, table)
	}
	assert.Contains(t, sql, "uq_provider_credentials_provider_id")
	assert.Contains(t, sql, "ix_events_ts")
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-database-url", nil)
	require.Error(t, err)
}
