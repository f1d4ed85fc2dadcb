package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
)

func TestSQLiteMigrationProvider(t *testing.T) {
	provider := NewSQLiteMigrationProvider()
	ctx := context.Background()

	t.Run("GetSupportedEngine", func(t *testing.T) {
		require.Equal(t, "sqlite", provider.GetSupportedEngine())
		require.Implements(t, (*storage.MigrationProvider)(nil), provider)
	})

	t.Run("InvalidPath", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     "/invalid/path/that/does/not/exist/db.sqlite",
			Timeout: 1 * time.Second,
		}

		err := provider.RunMigrations(ctx, config)
		require.Error(t, err)

		_, err = provider.GetCurrentVersion(ctx, config)
		require.Error(t, err)
	})

	t.Run("UpAndDown", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     filepath.Join(t.TempDir(), "mpath.db"),
			Timeout: 5 * time.Second,
		}

		require.NoError(t, provider.RunMigrations(ctx, config))
		version, err := provider.GetCurrentVersion(ctx, config)
		require.NoError(t, err)
		require.Equal(t, int64(1), version)

		// running again is a no-op
		require.NoError(t, provider.RunMigrations(ctx, config))

		config.TargetVersion = 1
		require.NoError(t, provider.RunMigrations(ctx, config))
		version, err = provider.GetCurrentVersion(ctx, config)
		require.NoError(t, err)
		require.Equal(t, int64(1), version)
	})
}

func TestSQLiteMigrationProviderPrepareURI(t *testing.T) {
	provider := NewSQLiteMigrationProvider()

	t.Run("ValidPath", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		uri, err := provider.prepareURI(storage.MigrationConfig{URI: dbPath})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(uri, dbPath))
		require.Contains(t, uri, "_pragma=journal_mode")
		require.Contains(t, uri, "_txlock=immediate")
	})

	t.Run("FileWithQueryParams", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		uri, err := provider.prepareURI(storage.MigrationConfig{URI: dbPath + "?_foreign_keys=on&_pragma=busy_timeout(5000)"})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(uri, dbPath))
		require.Contains(t, uri, "_foreign_keys=on")
		require.Contains(t, uri, "_pragma=journal_mode")
		require.Contains(t, uri, "busy_timeout%285000%29")
		require.NotContains(t, uri, "busy_timeout%28100%29")
	})
}
