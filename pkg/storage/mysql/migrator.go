package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/openfga/mpath/assets"
	"github.com/openfga/mpath/pkg/storage"
)

// MySQLMigrationProvider implements MigrationProvider for MySQL.
type MySQLMigrationProvider struct{}

// NewMySQLMigrationProvider creates a new MySQL migration provider.
func NewMySQLMigrationProvider() *MySQLMigrationProvider {
	return &MySQLMigrationProvider{}
}

// GetSupportedEngine returns the database engine this provider supports.
func (m *MySQLMigrationProvider) GetSupportedEngine() string {
	return "mysql"
}

// RunMigrations executes MySQL database migrations.
func (m *MySQLMigrationProvider) RunMigrations(ctx context.Context, config storage.MigrationConfig) error {
	uri, err := m.prepareURI(config)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver("mysql", uri)
	if err != nil {
		return fmt.Errorf("failed to open mysql connection: %w", err)
	}
	defer db.Close()

	// Test connection with backoff
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = config.Timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	provider, err := newProvider(db)
	if err != nil {
		return err
	}

	return m.executeMigrations(ctx, provider, config)
}

// GetCurrentVersion returns the current migration version.
func (m *MySQLMigrationProvider) GetCurrentVersion(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	uri, err := m.prepareURI(config)
	if err != nil {
		return 0, err
	}

	db, err := goose.OpenDBWithDriver("mysql", uri)
	if err != nil {
		return 0, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	defer db.Close()

	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}

	return provider.GetDBVersion(ctx)
}

// newProvider creates a goose provider with the MySQL dialect and the embedded migrations.
func newProvider(db *sql.DB) (*goose.Provider, error) {
	migrationsFS, err := fs.Sub(assets.EmbedMigrations, assets.MySQLMigrationDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql migrations filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectMySQL, db, migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("failed to create goose provider: %w", err)
	}
	return provider, nil
}

// prepareURI processes the database URI with username/password overrides.
func (m *MySQLMigrationProvider) prepareURI(config storage.MigrationConfig) (string, error) {
	return PrepareDSN(config.URI, config.Username, config.Password)
}

// migrator is the part of [goose.Provider] used to move between schema versions.
type migrator interface {
	GetDBVersion(ctx context.Context) (int64, error)
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	UpTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
	DownTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
}

// executeMigrations runs the actual migration commands.
func (m *MySQLMigrationProvider) executeMigrations(ctx context.Context, provider migrator, config storage.MigrationConfig) error {
	log := config.GetLogger()

	currentVersion, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get mysql db version: %w", err)
	}

	log.Info("mysql current version", zap.Int64("version", currentVersion))

	if config.TargetVersion == 0 {
		log.Info("running all mysql migrations")
		_, err := provider.Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run mysql migrations: %w", err)
		}
		log.Info("mysql migration done")
		return nil
	}

	targetInt64Version := int64(config.TargetVersion)
	log.Info("migrating mysql", zap.Int64("target_version", targetInt64Version))

	switch {
	case targetInt64Version < currentVersion:
		_, err := provider.DownTo(ctx, targetInt64Version)
		if err != nil {
			return fmt.Errorf("failed to run mysql migrations down to %v: %w", targetInt64Version, err)
		}
	case targetInt64Version > currentVersion:
		_, err := provider.UpTo(ctx, targetInt64Version)
		if err != nil {
			return fmt.Errorf("failed to run mysql migrations up to %v: %w", targetInt64Version, err)
		}
	default:
		log.Info("mysql nothing to do")
		return nil
	}

	log.Info("mysql migration done")
	return nil
}
