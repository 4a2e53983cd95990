package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/storeops/storeops/pkg/logger"
	"github.com/storeops/storeops/runner"
)

// Index describes a single index to create on a collection.
type Index struct {
	Keys bson.D
	Name string
}

// FindOptions narrows a Find request.
type FindOptions struct {
	Sort  bson.D
	Limit int64
}

// ChangeStream is the cursor surface of a change-notification stream.
// *mongo.ChangeStream satisfies it.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Conn is a live connection to a document store. All operations speak to the
// store exclusively through this interface; it is the seam test doubles
// implement.
type Conn interface {
	// CreateCollection creates a collection, optionally with a JSON-schema
	// validator enforced by the store.
	CreateCollection(ctx context.Context, ns Namespace, validator bson.M) error
	InsertMany(ctx context.Context, ns Namespace, docs []any) (int, error)
	UpdateMany(ctx context.Context, ns Namespace, filter, update bson.M) (int64, error)
	DeleteOne(ctx context.Context, ns Namespace, filter bson.M) (int64, error)
	// Find decodes all matching documents into out (a pointer to a slice).
	Find(ctx context.Context, ns Namespace, filter bson.M, opts FindOptions, out any) error
	// Aggregate runs the pipeline and decodes all results into out.
	Aggregate(ctx context.Context, ns Namespace, pipeline mongo.Pipeline, out any) error
	CreateIndexes(ctx context.Context, ns Namespace, indexes []Index) ([]string, error)
	// RunCommand runs a database command (admin commands run against "admin")
	// and decodes the store's reply.
	RunCommand(ctx context.Context, db string, cmd bson.D) (bson.M, error)
	// Watch opens a change stream on the namespace. The returned stream is
	// owned by the caller and must be closed.
	Watch(ctx context.Context, ns Namespace, pipeline mongo.Pipeline) (ChangeStream, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// mongoConn implements Conn over the MongoDB driver.
type mongoConn struct {
	client *mongo.Client
	lggr   logger.Logger
}

var _ Conn = (*mongoConn)(nil)
var _ runner.Conn = (Conn)(nil)

// Dial connects to the document store at uri. Dial failures are connection
// errors per the runner taxonomy and are wrapped in runner.ErrConnection.
func Dial(ctx context.Context, uri string, lggr logger.Logger) (Conn, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runner.ErrConnection, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		// release the half-open client before reporting
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", runner.ErrConnection, err)
	}

	return &mongoConn{client: client, lggr: lggr.Named("docstore")}, nil
}

func (c *mongoConn) collection(ns Namespace) *mongo.Collection {
	return c.client.Database(ns.DB).Collection(ns.Collection)
}

func (c *mongoConn) CreateCollection(ctx context.Context, ns Namespace, validator bson.M) error {
	opts := options.CreateCollection()
	if validator != nil {
		opts = opts.SetValidator(validator)
	}

	return c.client.Database(ns.DB).CreateCollection(ctx, ns.Collection, opts)
}

func (c *mongoConn) InsertMany(ctx context.Context, ns Namespace, docs []any) (int, error) {
	res, err := c.collection(ns).InsertMany(ctx, docs)
	if err != nil {
		return 0, err
	}

	return len(res.InsertedIDs), nil
}

func (c *mongoConn) UpdateMany(ctx context.Context, ns Namespace, filter, update bson.M) (int64, error) {
	res, err := c.collection(ns).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}

	return res.ModifiedCount, nil
}

func (c *mongoConn) DeleteOne(ctx context.Context, ns Namespace, filter bson.M) (int64, error) {
	res, err := c.collection(ns).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}

	return res.DeletedCount, nil
}

func (c *mongoConn) Find(ctx context.Context, ns Namespace, filter bson.M, opts FindOptions, out any) error {
	findOpts := options.Find()
	if opts.Sort != nil {
		findOpts = findOpts.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(opts.Limit)
	}

	cursor, err := c.collection(ns).Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}

	return cursor.All(ctx, out)
}

func (c *mongoConn) Aggregate(ctx context.Context, ns Namespace, pipeline mongo.Pipeline, out any) error {
	cursor, err := c.collection(ns).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}

	return cursor.All(ctx, out)
}

func (c *mongoConn) CreateIndexes(ctx context.Context, ns Namespace, indexes []Index) ([]string, error) {
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		model := mongo.IndexModel{Keys: idx.Keys}
		if idx.Name != "" {
			model.Options = options.Index().SetName(idx.Name)
		}
		models = append(models, model)
	}

	return c.collection(ns).Indexes().CreateMany(ctx, models)
}

func (c *mongoConn) RunCommand(ctx context.Context, db string, cmd bson.D) (bson.M, error) {
	var reply bson.M
	if err := c.client.Database(db).RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, err
	}

	return reply, nil
}

func (c *mongoConn) Watch(ctx context.Context, ns Namespace, pipeline mongo.Pipeline) (ChangeStream, error) {
	return c.collection(ns).Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
}

func (c *mongoConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *mongoConn) Close(ctx context.Context) error {
	c.lggr.Debugw("Disconnecting from document store")

	return c.client.Disconnect(ctx)
}
