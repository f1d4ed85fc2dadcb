package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("mpath/pkg/storage/sqlite")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlite."+name)
}

// Datastore provides a SQLite based implementation of [storage.Datastore].
type Datastore struct {
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	versionReady     bool
}

// Ensures that Datastore implements the Datastore interface.
var _ storage.Datastore = (*Datastore)(nil)

// PrepareDSN Prepare a raw DSN from config for use with SQLite, specifying defaults for journal mode, busy timeout
// and case sensitive LIKE.
func PrepareDSN(uri string) (string, error) {
	// Set journal mode, busy timeout and LIKE pragmas if not specified.
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	foundCaseSensitiveLike := false
	for _, val := range query["_pragma"] {
		switch {
		case strings.HasPrefix(val, "journal_mode"):
			foundJournalMode = true
		case strings.HasPrefix(val, "busy_timeout"):
			foundBusyTimeout = true
		case strings.HasPrefix(val, "case_sensitive_like"):
			foundCaseSensitiveLike = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}
	// Path filters use LIKE, which ignores ASCII case by default in SQLite.
	if !foundCaseSensitiveLike {
		query.Add("_pragma", "case_sensitive_like(1)")
	}

	// Set transaction mode to immediate if not specified
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}
	cfg.ApplyPoolSettings(db)

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "mpath")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "sqlite")

	return &Datastore{
		db:               db,
		dbInfo:           dbInfo,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
		versionReady:     false,
	}, nil
}

// Close see [storage.Datastore].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

// ReadNode see [storage.NodeReader].ReadNode.
func (s *Datastore) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	ctx, span := startTrace(ctx, "ReadNode")
	defer span.End()

	var node *storage.Node
	err := busyRetry(func() error {
		var err error
		node, err = sqlcommon.ReadNode(ctx, s.dbInfo, collection, id)
		return err
	})
	return node, err
}

// ReadNodes see [storage.NodeReader].ReadNodes.
func (s *Datastore) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	ctx, span := startTrace(ctx, "ReadNodes")
	defer span.End()

	return sqlcommon.ReadNodes(ctx, s.dbInfo, collection, filter, options)
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (s *Datastore) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	ctx, span := startTrace(ctx, "WriteNode")
	defer span.End()

	return busyRetry(func() error {
		return sqlcommon.WriteNode(ctx, s.dbInfo, collection, node)
	})
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (s *Datastore) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	ctx, span := startTrace(ctx, "UpdateNodeField")
	defer span.End()

	return busyRetry(func() error {
		return sqlcommon.UpdateNodeField(ctx, s.dbInfo, collection, id, field, value)
	})
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (s *Datastore) DeleteNode(ctx context.Context, collection, id string) error {
	ctx, span := startTrace(ctx, "DeleteNode")
	defer span.End()

	return busyRetry(func() error {
		return sqlcommon.DeleteNode(ctx, s.dbInfo, collection, id)
	})
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (s *Datastore) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	ctx, span := startTrace(ctx, "DeleteNodes")
	defer span.End()

	var deleted int64
	err := busyRetry(func() error {
		var err error
		deleted, err = sqlcommon.DeleteNodes(ctx, s.dbInfo, collection, filter)
		return err
	})
	return deleted, err
}

// IsReady see [storage.Datastore].IsReady.
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			return storage.ErrCollision
		}
	}

	return fmt.Errorf("sql error: %w", err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
