package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("mpath/pkg/storage/postgres")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+name)
}

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// Datastore provides a PostgreSQL based implementation of [storage.Datastore].
type Datastore struct {
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	versionReady     bool
}

// Ensures that Datastore implements the Datastore interface.
var _ storage.Datastore = (*Datastore)(nil)

// overrideCredentials returns uri with its user info replaced by username and password, when they are set.
func overrideCredentials(uri, username, password string) (string, error) {
	if username == "" && password == "" {
		return uri, nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid postgres database uri: %w", err)
	}

	if username == "" && parsed.User != nil {
		username = parsed.User.Username()
	}
	if password == "" && parsed.User != nil {
		password, _ = parsed.User.Password()
	}

	if password == "" {
		parsed.User = url.User(username)
	} else {
		parsed.User = url.UserPassword(username, password)
	}
	return parsed.String(), nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := overrideCredentials(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}
	cfg.ApplyPoolSettings(db)

	return NewWithDB(db, cfg)
}

// NewWithDB creates a new [Datastore] storage over an existing connection pool.
func NewWithDB(db *sql.DB, cfg *sqlcommon.Config) (*Datastore, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "mpath")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(db)

	return &Datastore{
		db:               db,
		dbInfo:           sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "postgres"),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
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

	return sqlcommon.ReadNode(ctx, s.dbInfo, collection, id)
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

	return sqlcommon.WriteNode(ctx, s.dbInfo, collection, node)
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (s *Datastore) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	ctx, span := startTrace(ctx, "UpdateNodeField")
	defer span.End()

	return sqlcommon.UpdateNodeField(ctx, s.dbInfo, collection, id, field, value)
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (s *Datastore) DeleteNode(ctx context.Context, collection, id string) error {
	ctx, span := startTrace(ctx, "DeleteNode")
	defer span.End()

	return sqlcommon.DeleteNode(ctx, s.dbInfo, collection, id)
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (s *Datastore) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	ctx, span := startTrace(ctx, "DeleteNodes")
	defer span.End()

	return sqlcommon.DeleteNodes(ctx, s.dbInfo, collection, filter)
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

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrCollision
	}
	if strings.Contains(err.Error(), "duplicate key value") {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
