package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/logger"
)

type fakeMigrationProvider struct {
	engine  string
	version int64
}

func (m *fakeMigrationProvider) GetSupportedEngine() string { return m.engine }

func (m *fakeMigrationProvider) RunMigrations(context.Context, MigrationConfig) error {
	m.version++
	return nil
}

func (m *fakeMigrationProvider) GetCurrentVersion(context.Context, MigrationConfig) (int64, error) {
	return m.version, nil
}

func TestMigratorRegistry(t *testing.T) {
	registry := NewMigratorRegistry()
	require.Empty(t, registry.GetSupportedEngines())

	first := &fakeMigrationProvider{engine: "sqlite"}
	second := &fakeMigrationProvider{engine: "sqlite"}
	registry.RegisterProvider("sqlite", first)
	registry.RegisterProvider("mongo", &fakeMigrationProvider{engine: "mongo"})
	require.ElementsMatch(t, []string{"sqlite", "mongo"}, registry.GetSupportedEngines())

	got, ok := registry.GetProvider("sqlite")
	require.True(t, ok)
	require.Same(t, first, got)

	registry.RegisterProvider("sqlite", second)
	got, ok = registry.GetProvider("sqlite")
	require.True(t, ok)
	require.Same(t, second, got)

	got, ok = registry.GetProvider("oracle")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestMigrationConfigLogger(t *testing.T) {
	require.NotNil(t, MigrationConfig{}.GetLogger())

	l := logger.NewNoopLogger()
	require.Same(t, l, MigrationConfig{Logger: l}.GetLogger())
}
