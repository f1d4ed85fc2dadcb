package util

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/config"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/memory"
)

func TestOpenDatastore(t *testing.T) {
	log := logger.NewNoopLogger()

	t.Run("memory_is_not_bounded", func(t *testing.T) {
		ds, err := OpenDatastore(config.DatastoreConfig{Engine: "memory", MaxOpenConns: 2}, log)
		require.NoError(t, err)
		defer ds.Close()

		require.IsType(t, &memory.MemoryBackend{}, ds)
	})

	t.Run("badger_is_bounded", func(t *testing.T) {
		ds, err := OpenDatastore(config.DatastoreConfig{
			Engine:       "badger",
			URI:          filepath.Join(t.TempDir(), "badger"),
			MaxOpenConns: 2,
		}, log)
		require.NoError(t, err)
		defer ds.Close()

		require.IsType(t, &boundedDatastore{}, ds)
		require.NoError(t, ds.WriteNode(context.Background(), "docs", &storage.Node{ID: "A", Path: "A"}))
	})

	t.Run("unknown_engine", func(t *testing.T) {
		_, err := OpenDatastore(config.DatastoreConfig{Engine: "cassandra"}, log)
		require.ErrorContains(t, err, "unsupported")
	})
}

func TestStartMetricsServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	stop := StartMetricsServer(addr, logger.NewNoopLogger())
	defer stop()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK && len(body) > 0
	}, 5*time.Second, 50*time.Millisecond)
}
