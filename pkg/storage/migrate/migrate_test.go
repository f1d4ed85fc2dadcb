package migrate_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/migrate"
	"github.com/openfga/mpath/pkg/storage/sqlcommon"
	"github.com/openfga/mpath/pkg/storage/sqlite"
)

func TestDefaultRegistry(t *testing.T) {
	require.ElementsMatch(t, []string{"postgres", "mysql", "sqlite"}, migrate.GetDefaultRegistry().GetSupportedEngines())
}

func TestRunMigrationsSkipsSchemalessEngines(t *testing.T) {
	for _, engine := range []string{"memory", "badger", "mongo"} {
		t.Run(engine, func(t *testing.T) {
			log, logs := logger.NewObserverLogger("info")
			err := migrate.RunMigrations(context.Background(), migrate.MigrationConfig{Engine: engine, Logger: log})
			require.NoError(t, err)
			require.Equal(t, 1, logs.FilterMessage("no migrations to run").Len())
		})
	}
}

func TestRunMigrationsUnknownEngine(t *testing.T) {
	err := migrate.RunMigrations(context.Background(), migrate.MigrationConfig{Engine: "cassandra"})
	require.ErrorContains(t, err, "no migration provider registered for engine: cassandra")
}

type failingProvider struct{}

func (failingProvider) RunMigrations(context.Context, storage.MigrationConfig) error {
	return errors.New("custom provider ran")
}

func (failingProvider) GetCurrentVersion(context.Context, storage.MigrationConfig) (int64, error) {
	return 0, nil
}

func (failingProvider) GetSupportedEngine() string { return "custom" }

func TestRunMigrationsWithRegistry(t *testing.T) {
	registry := storage.NewMigratorRegistry()
	registry.RegisterProvider("custom", failingProvider{})

	err := migrate.RunMigrationsWithRegistry(context.Background(), registry, migrate.MigrationConfig{Engine: "custom"})
	require.ErrorContains(t, err, "custom provider ran")
}

func TestRunMigrationsSQLite(t *testing.T) {
	uri := filepath.Join(t.TempDir(), "mpath.db")

	err := migrate.RunMigrations(context.Background(), migrate.MigrationConfig{
		Engine:  "sqlite",
		URI:     uri,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	ds, err := sqlite.New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	defer ds.Close()

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.True(t, status.IsReady)
}
