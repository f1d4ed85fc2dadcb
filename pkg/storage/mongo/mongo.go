// Package mongo provides a MongoDB based [storage.Datastore]. Every tree
// collection maps to a MongoDB collection of the same name, keyed by node id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
)

var tracer = otel.Tracer("mpath/pkg/storage/mongo")

// DefaultDatabase is used when the configuration names no database.
const DefaultDatabase = "mpath"

// Config holds configuration for a [Datastore].
type Config struct {
	Database string
	Username string
	Password string
	Logger   logger.Logger
}

// Datastore provides a MongoDB based implementation of [storage.Datastore].
type Datastore struct {
	client *mongo.Client
	db     *mongo.Database
	logger logger.Logger

	// collections whose indexes are known to exist
	indexed sync.Map
}

var _ storage.Datastore = (*Datastore)(nil)

// New connects to the MongoDB deployment at uri and waits until it answers.
func New(uri string, cfg Config) (*Datastore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}

	opts := options.Client().ApplyURI(uri)
	if cfg.Username != "" || cfg.Password != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("initialize mongo connection: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err := client.Ping(context.Background(), readpref.Primary())
		if err != nil {
			cfg.Logger.Info("waiting for mongo", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Datastore{
		client: client,
		db:     client.Database(cfg.Database),
		logger: cfg.Logger,
	}, nil
}

// Close see [storage.Datastore].Close.
func (s *Datastore) Close() {
	if err := s.client.Disconnect(context.Background()); err != nil {
		s.logger.Error("failed to disconnect from mongo", zap.Error(err))
	}
}

// IsReady see [storage.Datastore].IsReady.
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return storage.ReadinessStatus{Message: err.Error()}, err
	}
	return storage.ReadinessStatus{IsReady: true}, nil
}

// EnsureIndexes creates the parent and path indexes of a collection.
// It is called on the first write to each collection and is safe to call again.
func (s *Datastore) EnsureIndexes(ctx context.Context, collection string) error {
	if _, ok := s.indexed.Load(collection); ok {
		return nil
	}

	_, err := s.db.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "parent", Value: 1}}},
		{Keys: bson.D{{Key: "path", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes of %s: %w", collection, err)
	}

	s.indexed.Store(collection, struct{}{})
	s.logger.Debug("mongo indexes ensured", logger.Collection(collection))
	return nil
}

// FilterDocument translates filter into a MongoDB query document.
func FilterDocument(filter storage.NodeFilter) bson.M {
	query := bson.M{}
	if len(filter.IDs) > 0 {
		query["_id"] = bson.M{"$in": filter.IDs}
	}
	if filter.Parent != "" {
		query["parent"] = filter.Parent
	}
	if filter.RootsOnly {
		query["parent"] = bson.M{"$exists": false}
	}
	if filter.Name != "" {
		query["name"] = filter.Name
	}

	var paths []bson.M
	if filter.PathPrefix != "" {
		paths = append(paths, bson.M{"path": bson.Regex{Pattern: "^" + regexp.QuoteMeta(filter.PathPrefix)}})
	}
	if filter.PathSegment != "" {
		sep := regexp.QuoteMeta(filter.Separator)
		paths = append(paths, bson.M{"path": bson.Regex{Pattern: "(^|" + sep + ")" + regexp.QuoteMeta(filter.PathSegment) + sep}})
	}
	switch len(paths) {
	case 0:
	case 1:
		query["path"] = paths[0]["path"]
	default:
		query["$and"] = paths
	}

	return query
}

// HandleMongoError maps driver errors to storage errors.
func HandleMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrCollision
	default:
		return fmt.Errorf("mongo error: %w", err)
	}
}

// ReadNode see [storage.NodeReader].ReadNode.
func (s *Datastore) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	ctx, span := tracer.Start(ctx, "mongo.ReadNode")
	defer span.End()

	var node storage.Node
	if err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&node); err != nil {
		return nil, HandleMongoError(err)
	}
	return &node, nil
}

// ReadNodes see [storage.NodeReader].ReadNodes.
// The returned iterator wraps a server cursor, which MongoDB keeps valid under concurrent writes.
func (s *Datastore) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, readOptions storage.ReadOptions) (storage.NodeIterator, error) {
	ctx, span := tracer.Start(ctx, "mongo.ReadNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	opts := options.Find().SetBatchSize(storage.DefaultPageSize)
	if readOptions.SortByPath {
		opts.SetSort(bson.D{{Key: "path", Value: 1}, {Key: "_id", Value: 1}})
	}

	cursor, err := s.db.Collection(collection).Find(ctx, FilterDocument(filter), opts)
	if err != nil {
		return nil, HandleMongoError(err)
	}

	return &nodeIterator{cursor: cursor}, nil
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (s *Datastore) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	ctx, span := tracer.Start(ctx, "mongo.WriteNode")
	defer span.End()

	if err := s.EnsureIndexes(ctx, collection); err != nil {
		return err
	}

	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": node.ID}, node, options.Replace().SetUpsert(true))
	if err != nil {
		return HandleMongoError(err)
	}
	return nil
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
// An empty parent is unset rather than stored, so roots match RootsOnly.
func (s *Datastore) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	ctx, span := tracer.Start(ctx, "mongo.UpdateNodeField")
	defer span.End()

	if err := storage.ValidateField(field); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{string(field): value}}
	if field == storage.FieldParent && value == "" {
		update = bson.M{"$unset": bson.M{string(field): ""}}
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return HandleMongoError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (s *Datastore) DeleteNode(ctx context.Context, collection, id string) error {
	ctx, span := tracer.Start(ctx, "mongo.DeleteNode")
	defer span.End()

	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return HandleMongoError(err)
	}
	return nil
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (s *Datastore) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	ctx, span := tracer.Start(ctx, "mongo.DeleteNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.Collection(collection).DeleteMany(ctx, FilterDocument(filter))
	if err != nil {
		return 0, HandleMongoError(err)
	}
	return res.DeletedCount, nil
}

// nodeIterator adapts a mongo cursor to [storage.NodeIterator].
type nodeIterator struct {
	cursor *mongo.Cursor
	mu     sync.Mutex
	done   bool
}

var _ storage.NodeIterator = (*nodeIterator)(nil)

func (it *nodeIterator) Next(ctx context.Context) (*storage.Node, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.done {
		return nil, storage.ErrIteratorDone
	}

	if !it.cursor.Next(ctx) {
		err := it.cursor.Err()
		it.close()
		if err != nil {
			return nil, HandleMongoError(err)
		}
		return nil, storage.ErrIteratorDone
	}

	var node storage.Node
	if err := it.cursor.Decode(&node); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &node, nil
}

func (it *nodeIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.close()
}

func (it *nodeIterator) close() {
	if it.done {
		return
	}
	it.done = true
	_ = it.cursor.Close(context.Background())
}
