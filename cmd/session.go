package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/openfga/mpath/cmd/util"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage/storagewrappers"
	"github.com/openfga/mpath/pkg/telemetry"
	"github.com/openfga/mpath/pkg/tree"
)

// session holds what a tree command needs. It must be closed once the command is done.
type session struct {
	logger logger.Logger
	ds     *storagewrappers.InstrumentedDatastore
	tree   *tree.Tree

	stopMetrics    func()
	tracerProvider *sdktrace.TracerProvider
}

func openSession() (*session, error) {
	cfg, err := util.ReadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	s := &session{logger: log}
	if cfg.Metrics.Enabled {
		s.stopMetrics = util.StartMetricsServer(cfg.Metrics.Addr, log)
	}

	if cfg.Trace.Enabled {
		log.Info("tracing enabled", zap.Float64("sample_ratio", cfg.Trace.SampleRatio), zap.String("endpoint", cfg.Trace.OTLP.Endpoint))
		s.tracerProvider, err = telemetry.NewTracerProvider(context.Background(),
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
			telemetry.WithMinTraceLatency(cfg.Trace.MinLatency),
		)
		if err != nil {
			s.close()
			return nil, err
		}
	}

	ds, err := util.OpenDatastore(cfg.Datastore, log)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	s.ds = storagewrappers.NewInstrumentedDatastore(ds)

	opts := append(cfg.TreeOptions(), tree.WithLogger(log))
	s.tree, err = tree.New(s.ds, cfg.Tree.Collection, opts...)
	if err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

func (s *session) close() {
	if s.ds != nil {
		metrics := s.ds.GetMetrics()
		s.logger.Debug("datastore calls",
			zap.Uint32("datastore_read_count", metrics.DatastoreReadCount),
			zap.Uint32("datastore_write_count", metrics.DatastoreWriteCount),
		)
		s.ds.Close()
	}
	if s.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.tracerProvider.ForceFlush(ctx); err != nil {
			s.logger.Error("failed to flush traces", zap.Error(err))
		}
		if err := s.tracerProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shut down the tracer provider", zap.Error(err))
		}
	}
	if s.stopMetrics != nil {
		s.stopMetrics()
	}
}

// withSession opens a session around fn.
func withSession(fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		return fn(cmd, args, s)
	}
}

// printJSON writes v to the command output as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

