// Package sqlcommon holds the node table logic shared by the SQL datastores.
package sqlcommon

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"

	"github.com/openfga/mpath/internal/build"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
)

var tracer = otel.Tracer("pkg/storage/sqlcommon")

const nodeTable = "node"

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Username string
	Password string
	Logger   logger.Logger

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	return cfg
}

// ApplyPoolSettings sets the connection pool limits of cfg on db. Zero values keep the driver defaults.
func (cfg *Config) ApplyPoolSettings(db *sql.DB) {
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// DBInfo encapsulates DB information for use in common method.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	HandleSQLError errorHandlerFn
	upsertSuffix   string
}

type errorHandlerFn func(error, ...interface{}) error

// NewDBInfo constructs a [DBInfo] object.
func NewDBInfo(db *sql.DB, stbl sq.StatementBuilderType, errorHandler errorHandlerFn, dialect string) *DBInfo {
	if err := goose.SetDialect(dialect); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           stbl,
		HandleSQLError: errorHandler,
		upsertSuffix:   upsertSuffix(dialect),
	}
}

func upsertSuffix(dialect string) string {
	if dialect == "mysql" {
		return "ON DUPLICATE KEY UPDATE parent = VALUES(parent), path = VALUES(path), name = VALUES(name), " +
			"data = VALUES(data), updated_at = VALUES(updated_at)"
	}
	return "ON CONFLICT (collection, id) DO UPDATE SET parent = excluded.parent, path = excluded.path, " +
		"name = excluded.name, data = excluded.data, updated_at = excluded.updated_at"
}

// likeEscape is the escape character of every LIKE pattern built by this package.
const likeEscape = "!"

// EscapeLike escapes the LIKE wildcards of s, so that it matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_").Replace(s)
}

func like(column, pattern string) sq.Sqlizer {
	return sq.Expr(column+" LIKE ? ESCAPE '"+likeEscape+"'", pattern)
}

// FilterConditions returns the WHERE conditions selecting the nodes of collection that match filter.
func FilterConditions(collection string, filter storage.NodeFilter) sq.And {
	conds := sq.And{sq.Eq{"collection": collection}}

	if len(filter.IDs) > 0 {
		conds = append(conds, sq.Eq{"id": filter.IDs})
	}
	if filter.Parent != "" {
		conds = append(conds, sq.Eq{"parent": filter.Parent})
	}
	if filter.RootsOnly {
		conds = append(conds, sq.Eq{"parent": nil})
	}
	if filter.PathPrefix != "" {
		conds = append(conds, like("path", EscapeLike(filter.PathPrefix)+"%"))
	}
	if filter.PathSegment != "" {
		needle := EscapeLike(filter.PathSegment + filter.Separator)
		conds = append(conds, sq.Or{
			like("path", needle+"%"),
			like("path", "%"+EscapeLike(filter.Separator)+needle+"%"),
		})
	}
	if filter.Name != "" {
		conds = append(conds, sq.Eq{"name": filter.Name})
	}

	return conds
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ReadNode provides the common method for reading a node by ID across sql storage.
func ReadNode(ctx context.Context, dbInfo *DBInfo, collection, id string) (*storage.Node, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.ReadNode")
	defer span.End()

	row := dbInfo.stbl.
		Select(nodeColumns...).
		From(nodeTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		QueryRowContext(ctx)

	node, err := scanNode(row)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	return node, nil
}

// ReadNodes provides the common method for reading the nodes matching a filter across sql storage.
func ReadNodes(ctx context.Context, dbInfo *DBInfo, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	_, span := tracer.Start(ctx, "sqlcommon.ReadNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	sb := dbInfo.stbl.
		Select(nodeColumns...).
		From(nodeTable).
		Where(FilterConditions(collection, filter))

	iter := NewSQLNodeIterator(sb, options.SortByPath, dbInfo.HandleSQLError)
	if filter.PathPrefix == "" && filter.PathSegment == "" {
		return iter, nil
	}

	// LIKE matching depends on the column collation, recheck the path patterns exactly.
	return storage.NewFilteredNodeIterator(iter, func(node *storage.Node) bool {
		return storage.MatchNode(node, filter)
	}), nil
}

// WriteNode provides the common method for inserting or replacing a node across sql storage.
func WriteNode(ctx context.Context, dbInfo *DBInfo, collection string, node *storage.Node) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.WriteNode")
	defer span.End()

	now := time.Now().UTC()
	_, err := dbInfo.stbl.
		Insert(nodeTable).
		Columns("collection", "id", "parent", "path", "name", "data", "inserted_at", "updated_at").
		Values(collection, node.ID, nullable(node.Parent), node.Path, node.Name, node.Data, now, now).
		Suffix(dbInfo.upsertSuffix).
		ExecContext(ctx)
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	return nil
}

// UpdateNodeField provides the common method for updating one field of a node across sql storage.
func UpdateNodeField(ctx context.Context, dbInfo *DBInfo, collection, id string, field storage.Field, value string) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.UpdateNodeField")
	defer span.End()

	if err := storage.ValidateField(field); err != nil {
		return err
	}

	var v interface{} = value
	if field == storage.FieldParent {
		v = nullable(value)
	}

	res, err := dbInfo.stbl.
		Update(nodeTable).
		Set(string(field), v).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"collection": collection, "id": id}).
		ExecContext(ctx)
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteNode provides the common method for deleting a node across sql storage.
func DeleteNode(ctx context.Context, dbInfo *DBInfo, collection, id string) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.DeleteNode")
	defer span.End()

	_, err := dbInfo.stbl.
		Delete(nodeTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ExecContext(ctx)
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	return nil
}

// DeleteNodes provides the common method for deleting the nodes matching a filter across sql storage.
func DeleteNodes(ctx context.Context, dbInfo *DBInfo, collection string, filter storage.NodeFilter) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.DeleteNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return 0, err
	}

	res, err := dbInfo.stbl.
		Delete(nodeTable).
		Where(FilterConditions(collection, filter)).
		ExecContext(ctx)
	if err != nil {
		return 0, dbInfo.HandleSQLError(err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, dbInfo.HandleSQLError(err)
	}
	return deleted, nil
}

// IsReady returns true if connection to datastore is successful AND
// (the datastore has the latest migration applied OR skipVersionCheck).
func IsReady(ctx context.Context, skipVersionCheck bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// do ping first to ensure we have better error message
	// if error is due to connection issue.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if skipVersionCheck {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(build.MinimumSupportedDatastoreSchemaRevision, 10) +
				"'. Run 'mpath migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}
