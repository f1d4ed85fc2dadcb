// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfga/mpath/cmd/util"
	"github.com/openfga/mpath/pkg/config"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with MPATH, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MPATH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/mpath", "$HOME/.mpath", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	cmd := &cobra.Command{
		Use:   "mpath",
		Short: "Maintain materialized-path trees stored in flat document collections",
		Long: `Maintain materialized-path trees stored in flat document collections.

Every node stores its parent and the path of ancestor identifiers leading to it. mpath keeps
those paths consistent when nodes are added, moved or removed, and answers hierarchical queries.`,
		SilenceUsage: true,
	}

	bindPersistentFlags(cmd)

	return cmd
}

// bindPersistentFlags binds the cobra persistent flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindPersistentFlags(command *cobra.Command) {
	defaultConfig := config.DefaultConfig()
	flags := command.PersistentFlags()

	flags.String("datastore-engine", defaultConfig.Datastore.Engine, fmt.Sprintf("the datastore engine that will be used for persistence, one of %v", config.Engines))
	util.MustBindPFlag("datastore.engine", flags.Lookup("datastore-engine"))
	util.MustBindEnv("datastore.engine", "MPATH_DATASTORE_ENGINE")

	flags.String("datastore-uri", defaultConfig.Datastore.URI, "the connection uri to use to connect to the datastore (for badger and sqlite, a path)")
	util.MustBindPFlag("datastore.uri", flags.Lookup("datastore-uri"))
	util.MustBindEnv("datastore.uri", "MPATH_DATASTORE_URI")

	flags.String("datastore-username", "", "the connection username to use to connect to the datastore (overwrites any username provided in the connection uri)")
	util.MustBindPFlag("datastore.username", flags.Lookup("datastore-username"))
	util.MustBindEnv("datastore.username", "MPATH_DATASTORE_USERNAME")

	flags.String("datastore-password", "", "the connection password to use to connect to the datastore (overwrites any password provided in the connection uri)")
	util.MustBindPFlag("datastore.password", flags.Lookup("datastore-password"))
	util.MustBindEnv("datastore.password", "MPATH_DATASTORE_PASSWORD")

	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")
	util.MustBindPFlag("datastore.maxOpenConns", flags.Lookup("datastore-max-open-conns"))
	util.MustBindEnv("datastore.maxOpenConns", "MPATH_DATASTORE_MAX_OPEN_CONNS")

	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")
	util.MustBindPFlag("datastore.maxIdleConns", flags.Lookup("datastore-max-idle-conns"))
	util.MustBindEnv("datastore.maxIdleConns", "MPATH_DATASTORE_MAX_IDLE_CONNS")

	flags.Duration("datastore-conn-max-idle-time", defaultConfig.Datastore.ConnMaxIdleTime, "the maximum amount of time a connection to the datastore may be idle")
	util.MustBindPFlag("datastore.connMaxIdleTime", flags.Lookup("datastore-conn-max-idle-time"))
	util.MustBindEnv("datastore.connMaxIdleTime", "MPATH_DATASTORE_CONN_MAX_IDLE_TIME")

	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")
	util.MustBindPFlag("datastore.connMaxLifetime", flags.Lookup("datastore-conn-max-lifetime"))
	util.MustBindEnv("datastore.connMaxLifetime", "MPATH_DATASTORE_CONN_MAX_LIFETIME")

	flags.Bool("datastore-metrics-enabled", defaultConfig.Datastore.Metrics, "enable/disable sql connection pool metrics")
	util.MustBindPFlag("datastore.metrics", flags.Lookup("datastore-metrics-enabled"))
	util.MustBindEnv("datastore.metrics", "MPATH_DATASTORE_METRICS_ENABLED")

	flags.String("collection", defaultConfig.Tree.Collection, "the collection the tree is stored in")
	util.MustBindPFlag("tree.collection", flags.Lookup("collection"))
	util.MustBindEnv("tree.collection", "MPATH_COLLECTION")

	flags.String("path-separator", defaultConfig.Tree.PathSeparator, "the single character joining the identifiers of a path")
	util.MustBindPFlag("tree.pathSeparator", flags.Lookup("path-separator"))
	util.MustBindEnv("tree.pathSeparator", "MPATH_PATH_SEPARATOR")

	flags.String("on-delete", defaultConfig.Tree.OnDelete, "what happens to the descendants of a removed node: 'DELETE' or 'REPARENT'")
	util.MustBindPFlag("tree.onDelete", flags.Lookup("on-delete"))
	util.MustBindEnv("tree.onDelete", "MPATH_ON_DELETE")

	flags.Int("num-workers", defaultConfig.Tree.NumWorkers, "the number of concurrent updates of a cascading path rewrite")
	util.MustBindPFlag("tree.numWorkers", flags.Lookup("num-workers"))
	util.MustBindEnv("tree.numWorkers", "MPATH_NUM_WORKERS")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in ('text' or 'json')")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "MPATH_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use ('none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal')")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "MPATH_LOG_LEVEL")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable the prometheus metrics endpoint while a command runs")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "MPATH_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "MPATH_METRICS_ADDR")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "MPATH_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "MPATH_TRACE_OTLP_ENDPOINT")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "MPATH_TRACE_SAMPLE_RATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "MPATH_TRACE_SERVICE_NAME")

	flags.Duration("trace-min-latency", defaultConfig.Trace.MinLatency, "only export the traces lasting at least this long (0 exports all sampled traces)")
	util.MustBindPFlag("trace.minLatency", flags.Lookup("trace-min-latency"))
	util.MustBindEnv("trace.minLatency", "MPATH_TRACE_MIN_LATENCY")
}
