package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/tree"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Verify())
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(cfg *Config)
		expectedError string
	}{
		{
			name:          "unknown_engine",
			mutate:        func(cfg *Config) { cfg.Datastore.Engine = "cassandra" },
			expectedError: "datastore.engine",
		},
		{
			name:          "missing_uri",
			mutate:        func(cfg *Config) { cfg.Datastore.Engine = "sqlite" },
			expectedError: "datastore.uri",
		},
		{
			name: "idle_above_open",
			mutate: func(cfg *Config) {
				cfg.Datastore.MaxOpenConns = 2
				cfg.Datastore.MaxIdleConns = 3
			},
			expectedError: "maxIdleConns",
		},
		{
			name:          "empty_collection",
			mutate:        func(cfg *Config) { cfg.Tree.Collection = "" },
			expectedError: "tree.collection",
		},
		{
			name:          "bad_policy",
			mutate:        func(cfg *Config) { cfg.Tree.OnDelete = "orphan" },
			expectedError: "tree.onDelete",
		},
		{
			name:          "long_separator",
			mutate:        func(cfg *Config) { cfg.Tree.PathSeparator = "##" },
			expectedError: "path separator",
		},
		{
			name:          "no_workers",
			mutate:        func(cfg *Config) { cfg.Tree.NumWorkers = 0 },
			expectedError: "number of workers",
		},
		{
			name:          "log_format",
			mutate:        func(cfg *Config) { cfg.Log.Format = "xml" },
			expectedError: "log.format",
		},
		{
			name:          "log_level",
			mutate:        func(cfg *Config) { cfg.Log.Level = "verbose" },
			expectedError: "log.level",
		},
		{
			name: "metrics_addr",
			mutate: func(cfg *Config) {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = "nope"
			},
			expectedError: "metrics.addr",
		},
		{
			name: "trace_sample_ratio",
			mutate: func(cfg *Config) {
				cfg.Trace.Enabled = true
				cfg.Trace.SampleRatio = 1.5
			},
			expectedError: "trace.sampleRatio",
		},
		{
			name: "trace_endpoint",
			mutate: func(cfg *Config) {
				cfg.Trace.Enabled = true
				cfg.Trace.OTLP.Endpoint = ""
			},
			expectedError: "trace.otlp.endpoint",
		},
		{
			name: "trace_disabled_ignores_endpoint",
			mutate: func(cfg *Config) {
				cfg.Trace.OTLP.Endpoint = ""
			},
		},
		{
			name: "lowercase_policy",
			mutate: func(cfg *Config) {
				cfg.Tree.OnDelete = "reparent"
				cfg.Datastore.Engine = "sqlite"
				cfg.Datastore.URI = "mpath.db"
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Verify()
			if tc.expectedError == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.expectedError)
		})
	}
}

func TestTreeOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tree.PathSeparator = "/"
	cfg.Tree.OnDelete = "reparent"
	cfg.Tree.NumWorkers = 3

	treeCfg := tree.NewConfig(cfg.TreeOptions()...)
	require.Equal(t, "/", treeCfg.PathSeparator)
	require.Equal(t, tree.OnDeleteReparent, treeCfg.OnDelete)
	require.Equal(t, 3, treeCfg.NumWorkers)
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Datastore.Password = "secret"

	redacted := cfg.Redacted()
	require.Equal(t, "REDACTED", redacted.Datastore.Password)
	require.Equal(t, "secret", cfg.Datastore.Password)
}
