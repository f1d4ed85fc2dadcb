// Package config contains all knobs and defaults used to configure mpath
// when it runs as a command line tool.
package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/openfga/mpath/pkg/tree"
)

const (
	DefaultCollection   = "nodes"
	DefaultMaxOpenConns = 30
	DefaultMaxIdleConns = 10
	DefaultMetricsAddr  = "0.0.0.0:2112"
	DefaultOTLPEndpoint = "0.0.0.0:4317"
)

// Engines lists the datastore engines mpath can run against.
var Engines = []string{"memory", "sqlite", "postgres", "mysql", "badger", "mongo"}

// DatastoreConfig defines the datastore the trees are stored in.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'memory', 'sqlite', 'postgres')
	Engine   string `mapstructure:"engine" json:"engine"`
	URI      string `mapstructure:"uri" json:"uri"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int `mapstructure:"maxOpenConns" json:"maxOpenConns"`

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int `mapstructure:"maxIdleConns" json:"maxIdleConns"`

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime" json:"connMaxIdleTime"`

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime" json:"connMaxLifetime"`

	// Metrics enables export of the datastore connection pool metrics.
	Metrics bool `mapstructure:"metrics" json:"metrics"`
}

// TreeConfig defines the tree collection commands operate on.
type TreeConfig struct {
	Collection    string `mapstructure:"collection" json:"collection"`
	PathSeparator string `mapstructure:"pathSeparator" json:"pathSeparator"`
	OnDelete      string `mapstructure:"onDelete" json:"onDelete"`
	NumWorkers    int    `mapstructure:"numWorkers" json:"numWorkers"`
}

// LogConfig defines the log output.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string `mapstructure:"format" json:"format"`

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string `mapstructure:"level" json:"level"`
}

// MetricConfig defines configurations for serving prometheus metrics.
type MetricConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`
}

// TraceConfig defines the export of the spans to an OTLP collector.
type TraceConfig struct {
	Enabled     bool            `mapstructure:"enabled" json:"enabled"`
	OTLP        OTLPTraceConfig `mapstructure:"otlp" json:"otlp"`
	SampleRatio float64         `mapstructure:"sampleRatio" json:"sampleRatio"`
	ServiceName string          `mapstructure:"serviceName" json:"serviceName"`

	// MinLatency drops the traces whose root span took less, when positive.
	MinLatency time.Duration `mapstructure:"minLatency" json:"minLatency"`
}

type OTLPTraceConfig struct {
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
}

type Config struct {
	Datastore DatastoreConfig `mapstructure:"datastore" json:"datastore"`
	Tree      TreeConfig      `mapstructure:"tree" json:"tree"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Metrics   MetricConfig    `mapstructure:"metrics" json:"metrics"`
	Trace     TraceConfig     `mapstructure:"trace" json:"trace"`
}

// TreeOptions returns the tree options the configuration describes. Verify must have succeeded.
func (cfg *Config) TreeOptions() []tree.Option {
	policy, _ := tree.ParseDeletePolicy(cfg.Tree.OnDelete)
	return []tree.Option{
		tree.WithPathSeparator(cfg.Tree.PathSeparator),
		tree.WithOnDelete(policy),
		tree.WithNumWorkers(cfg.Tree.NumWorkers),
	}
}

func (cfg *Config) Verify() error {
	if !slices.Contains(Engines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v, got '%s'", Engines, cfg.Datastore.Engine)
	}

	if cfg.Datastore.Engine != "memory" && cfg.Datastore.URI == "" {
		return fmt.Errorf("config 'datastore.uri' is required for the '%s' engine", cfg.Datastore.Engine)
	}

	if cfg.Datastore.MaxOpenConns < 0 || cfg.Datastore.MaxIdleConns < 0 {
		return errors.New("configs 'datastore.maxOpenConns' and 'datastore.maxIdleConns' cannot be negative")
	}

	if cfg.Datastore.MaxOpenConns != 0 && cfg.Datastore.MaxIdleConns > cfg.Datastore.MaxOpenConns {
		return fmt.Errorf(
			"config 'datastore.maxIdleConns' (%d) cannot be greater than 'datastore.maxOpenConns' (%d)",
			cfg.Datastore.MaxIdleConns,
			cfg.Datastore.MaxOpenConns,
		)
	}

	if cfg.Tree.Collection == "" {
		return errors.New("config 'tree.collection' cannot be empty")
	}

	if _, err := tree.ParseDeletePolicy(cfg.Tree.OnDelete); err != nil {
		return fmt.Errorf("config 'tree.onDelete': %w", err)
	}

	treeCfg := tree.NewConfig(cfg.TreeOptions()...)
	if err := treeCfg.Verify(); err != nil {
		return fmt.Errorf("config 'tree': %w", err)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return errors.New("config 'log.format' must be one of ['text', 'json']")
	}

	if !slices.Contains([]string{"none", "debug", "info", "warn", "error", "panic", "fatal"}, cfg.Log.Level) {
		return errors.New("config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']")
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("config 'metrics.addr' must be a host:port address: %w", err)
		}
	}

	if cfg.Trace.Enabled {
		if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
			return errors.New("config 'trace.sampleRatio' must be between 0 and 1")
		}
		if cfg.Trace.OTLP.Endpoint == "" {
			return errors.New("config 'trace.otlp.endpoint' is required when tracing is enabled")
		}
	}

	return nil
}

// DefaultConfig is the mpath default configuration.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:       "memory",
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Tree: TreeConfig{
			Collection:    DefaultCollection,
			PathSeparator: tree.DefaultPathSeparator,
			OnDelete:      string(tree.DefaultOnDelete),
			NumWorkers:    tree.DefaultNumWorkers,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Trace: TraceConfig{
			Enabled:     false,
			OTLP:        OTLPTraceConfig{Endpoint: DefaultOTLPEndpoint},
			SampleRatio: 0.2,
			ServiceName: "mpath",
		},
	}
}

// Redacted returns a copy of cfg without secrets, fit for printing.
func (cfg *Config) Redacted() *Config {
	c := *cfg
	if c.Datastore.Password != "" {
		c.Datastore.Password = "REDACTED"
	}
	return &c
}
