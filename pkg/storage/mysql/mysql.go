package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("mpath/pkg/storage/mysql")

// duplicateEntry is the MySQL error number of a unique key violation.
const duplicateEntry = 1062

// MySQL provides a MySQL based implementation of [storage.Datastore].
type MySQL struct {
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	versionReady     bool
}

var _ storage.Datastore = (*MySQL)(nil)

// PrepareDSN applies the credential overrides of cfg to uri and sets the
// driver options the node queries rely on. ClientFoundRows makes an update
// that leaves a row unchanged still count as affected.
func PrepareDSN(uri, username, password string) (string, error) {
	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("invalid mysql database uri: %w", err)
	}

	if username != "" {
		dsnCfg.User = username
	}
	if password != "" {
		dsnCfg.Passwd = password
	}
	dsnCfg.ParseTime = true
	dsnCfg.ClientFoundRows = true

	return dsnCfg.FormatDSN(), nil
}

// New creates a new [MySQL] storage.
func New(uri string, cfg *sqlcommon.Config) (*MySQL, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}
	cfg.ApplyPoolSettings(db)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err = db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for mysql", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "mpath")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return &MySQL{
		db:               db,
		dbInfo:           sqlcommon.NewDBInfo(db, sq.StatementBuilder.RunWith(db), HandleSQLError, "mysql"),
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

// Close closes the datastore and cleans up any residual resources.
func (m *MySQL) Close() {
	if m.dbStatsCollector != nil {
		prometheus.Unregister(m.dbStatsCollector)
	}
	m.db.Close()
}

// ReadNode see [storage.NodeReader].ReadNode.
func (m *MySQL) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	ctx, span := tracer.Start(ctx, "mysql.ReadNode")
	defer span.End()

	return sqlcommon.ReadNode(ctx, m.dbInfo, collection, id)
}

// ReadNodes see [storage.NodeReader].ReadNodes.
func (m *MySQL) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	ctx, span := tracer.Start(ctx, "mysql.ReadNodes")
	defer span.End()

	return sqlcommon.ReadNodes(ctx, m.dbInfo, collection, filter, options)
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (m *MySQL) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	ctx, span := tracer.Start(ctx, "mysql.WriteNode")
	defer span.End()

	return sqlcommon.WriteNode(ctx, m.dbInfo, collection, node)
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (m *MySQL) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	ctx, span := tracer.Start(ctx, "mysql.UpdateNodeField")
	defer span.End()

	return sqlcommon.UpdateNodeField(ctx, m.dbInfo, collection, id, field, value)
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (m *MySQL) DeleteNode(ctx context.Context, collection, id string) error {
	ctx, span := tracer.Start(ctx, "mysql.DeleteNode")
	defer span.End()

	return sqlcommon.DeleteNode(ctx, m.dbInfo, collection, id)
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (m *MySQL) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	ctx, span := tracer.Start(ctx, "mysql.DeleteNodes")
	defer span.End()

	return sqlcommon.DeleteNodes(ctx, m.dbInfo, collection, filter)
}

// IsReady see [storage.Datastore].IsReady.
func (m *MySQL) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, m.versionReady, m.db)
	if err != nil {
		return versionReady, err
	}
	m.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == duplicateEntry {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
