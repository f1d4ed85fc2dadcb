// Package util provides common utilities for spf13/cobra CLI utilities
// that can be used for various commands within this project.
package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfga/mpath/pkg/config"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/badger"
	"github.com/openfga/mpath/pkg/storage/memory"
	"github.com/openfga/mpath/pkg/storage/mongo"
	"github.com/openfga/mpath/pkg/storage/mysql"
	"github.com/openfga/mpath/pkg/storage/postgres"
	"github.com/openfga/mpath/pkg/storage/sqlcommon"
	"github.com/openfga/mpath/pkg/storage/sqlite"
	"github.com/openfga/mpath/pkg/storage/storagewrappers"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// PrepareTempConfigDir points HOME at a temporary directory holding an empty .mpath
// config directory, and clears any configuration viper holds from a previous command.
func PrepareTempConfigDir(t *testing.T) string {
	_, err := os.Stat("/etc/mpath/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "Config file at /etc/mpath/config.yaml would disturb test result.")

	viper.Reset()

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".mpath")
	require.NoError(t, os.Mkdir(confdir, 0750))

	return confdir
}

func PrepareTempConfigFile(t *testing.T, config string) {
	confdir := PrepareTempConfigDir(t)
	confFile, err := os.Create(filepath.Join(confdir, "config.yaml"))
	require.NoError(t, err)
	_, err = confFile.WriteString(config)
	require.NoError(t, err)
	require.NoError(t, confFile.Close())
}

// OpenDatastore opens the datastore cfg describes. When a connection limit is
// configured, the datastore is wrapped so that no more calls than that run at once.
func OpenDatastore(cfg config.DatastoreConfig, log logger.Logger) (storage.Datastore, error) {
	ds, err := openEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && cfg.Engine != "memory" {
		return &boundedDatastore{
			BoundedConcurrencyDatastore: storagewrappers.NewBoundedConcurrencyDatastore(ds, uint32(cfg.MaxOpenConns)),
			closer:                      ds,
		}, nil
	}
	return ds, nil
}

// boundedDatastore closes the engine it bounds.
type boundedDatastore struct {
	*storagewrappers.BoundedConcurrencyDatastore
	closer storage.Datastore
}

func (b *boundedDatastore) Close() {
	b.closer.Close()
}

// ReadConfig returns the configuration assembled from the config file, the environment and the flags, verified.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func openEngine(cfg config.DatastoreConfig, log logger.Logger) (storage.Datastore, error) {
	opts := []sqlcommon.DatastoreOption{
		sqlcommon.WithUsername(cfg.Username),
		sqlcommon.WithPassword(cfg.Password),
		sqlcommon.WithLogger(log),
		sqlcommon.WithMaxOpenConns(cfg.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(cfg.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(cfg.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(cfg.ConnMaxLifetime),
	}
	if cfg.Metrics {
		opts = append(opts, sqlcommon.WithMetrics())
	}
	sqlCfg := sqlcommon.NewConfig(opts...)

	switch cfg.Engine {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.URI, sqlCfg)
	case "postgres":
		return postgres.New(cfg.URI, sqlCfg)
	case "mysql":
		return mysql.New(cfg.URI, sqlCfg)
	case "badger":
		return badger.New(badger.Config{Path: cfg.URI, SyncWrites: true, Logger: log})
	case "mongo":
		return mongo.New(cfg.URI, mongo.Config{Username: cfg.Username, Password: cfg.Password, Logger: log})
	default:
		return nil, fmt.Errorf("storage engine '%s' is unsupported", cfg.Engine)
	}
}

// StartMetricsServer serves the prometheus metrics on addr until the returned stop function is called.
func StartMetricsServer(addr string, log logger.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("starting prometheus metrics server", zap.String("addr", addr))
		if err := metricsServer.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				log.Error("failed to start prometheus metrics server", zap.Error(err))
			}
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error("failed to shut down prometheus metrics server", zap.Error(err))
		}
		log.Info("metrics server shut down")
	}
}
