package docstore

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/runner"
)

// Version is the catalog version of the document store operations.
var Version = semver.MustParse("1.0.0")

// Place is the example document the demo sequence works with.
type Place struct {
	Name     string   `bson:"name" json:"name"`
	Cuisine  string   `bson:"cuisine" json:"cuisine"`
	Borough  string   `bson:"borough" json:"borough"`
	Location GeoPoint `bson:"location" json:"location"`
}

// GeoPoint is a GeoJSON point.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

func nsOf(name string) (Namespace, error) {
	ns := ParseNamespace(name)
	if !ns.IsValid() {
		return Namespace{}, fmt.Errorf("invalid namespace %q (want db.collection)", name)
	}

	return ns, nil
}

type CreateCollectionInput struct {
	Namespace      string   `json:"namespace"`
	RequiredFields []string `json:"requiredFields"`
}

type CreateCollectionOutput struct {
	Namespace string `json:"namespace"`
}

// CreateCollectionOp creates a collection with a JSON-schema validator
// requiring the given fields. Creating an existing collection surfaces the
// store's own error; the operation makes no idempotence promise.
var CreateCollectionOp = operations.NewOperation(
	"doc/create-collection", Version, "Create a collection with a schema validator",
	func(b operations.Bundle, conn Conn, input CreateCollectionInput) (CreateCollectionOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return CreateCollectionOutput{}, err
		}

		var validator bson.M
		if len(input.RequiredFields) > 0 {
			validator = bson.M{
				"$jsonSchema": bson.M{
					"bsonType": "object",
					"required": input.RequiredFields,
				},
			}
		}

		if err := conn.CreateCollection(b.GetContext(), ns, validator); err != nil {
			return CreateCollectionOutput{}, err
		}

		return CreateCollectionOutput{Namespace: ns.FullName()}, nil
	})

type IndexPlacesInput struct {
	Namespace string `json:"namespace"`
}

type IndexPlacesOutput struct {
	Names []string `json:"names"`
}

// IndexPlacesOp creates the geospatial and text indexes the query operations
// rely on.
var IndexPlacesOp = operations.NewOperation(
	"doc/index-places", Version, "Create 2dsphere and text indexes",
	func(b operations.Bundle, conn Conn, input IndexPlacesInput) (IndexPlacesOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return IndexPlacesOutput{}, err
		}

		names, err := conn.CreateIndexes(b.GetContext(), ns, []Index{
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}, Name: "location_2dsphere"},
			{Keys: bson.D{{Key: "name", Value: "text"}}, Name: "name_text"},
		})
		if err != nil {
			return IndexPlacesOutput{}, err
		}

		return IndexPlacesOutput{Names: names}, nil
	})

type InsertPlacesInput struct {
	Namespace string  `json:"namespace"`
	Places    []Place `json:"places"`
}

type InsertPlacesOutput struct {
	Inserted int `json:"inserted"`
}

// InsertPlacesOp inserts the given documents. Not idempotent: every run
// inserts again.
var InsertPlacesOp = operations.NewOperation(
	"doc/insert-places", Version, "Insert example places",
	func(b operations.Bundle, conn Conn, input InsertPlacesInput) (InsertPlacesOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return InsertPlacesOutput{}, err
		}

		docs := make([]any, 0, len(input.Places))
		for _, p := range input.Places {
			docs = append(docs, p)
		}

		n, err := conn.InsertMany(b.GetContext(), ns, docs)
		if err != nil {
			return InsertPlacesOutput{}, err
		}

		return InsertPlacesOutput{Inserted: n}, nil
	})

type UpdateCuisineInput struct {
	Namespace string `json:"namespace"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type UpdateCuisineOutput struct {
	Modified int64 `json:"modified"`
}

// UpdateCuisineOp renames a cuisine across all matching documents.
var UpdateCuisineOp = operations.NewOperation(
	"doc/update-cuisine", Version, "Rename a cuisine on all matching places",
	func(b operations.Bundle, conn Conn, input UpdateCuisineInput) (UpdateCuisineOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return UpdateCuisineOutput{}, err
		}

		modified, err := conn.UpdateMany(b.GetContext(), ns,
			bson.M{"cuisine": input.From},
			bson.M{"$set": bson.M{"cuisine": input.To}},
		)
		if err != nil {
			return UpdateCuisineOutput{}, err
		}

		return UpdateCuisineOutput{Modified: modified}, nil
	})

type DeletePlaceInput struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

type DeletePlaceOutput struct {
	Deleted int64 `json:"deleted"`
}

// DeletePlaceOp deletes a single place by name. Deleting a missing document
// is not an error; the output reports zero deletions.
var DeletePlaceOp = operations.NewOperation(
	"doc/delete-place", Version, "Delete one place by name",
	func(b operations.Bundle, conn Conn, input DeletePlaceInput) (DeletePlaceOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return DeletePlaceOutput{}, err
		}

		deleted, err := conn.DeleteOne(b.GetContext(), ns, bson.M{"name": input.Name})
		if err != nil {
			return DeletePlaceOutput{}, err
		}

		return DeletePlaceOutput{Deleted: deleted}, nil
	})

type FindPlacesInput struct {
	Namespace string `json:"namespace"`
	Cuisine   string `json:"cuisine"`
	Limit     int64  `json:"limit"`
}

type FindPlacesOutput struct {
	Places []Place `json:"places"`
}

// FindPlacesOp retrieves places, optionally filtered by cuisine, sorted by
// name.
var FindPlacesOp = operations.NewOperation(
	"doc/find-places", Version, "Find places by cuisine",
	func(b operations.Bundle, conn Conn, input FindPlacesInput) (FindPlacesOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return FindPlacesOutput{}, err
		}

		filter := bson.M{}
		if input.Cuisine != "" {
			filter["cuisine"] = input.Cuisine
		}

		var places []Place
		err = conn.Find(b.GetContext(), ns, filter, FindOptions{
			Sort:  bson.D{{Key: "name", Value: 1}},
			Limit: input.Limit,
		}, &places)
		if err != nil {
			return FindPlacesOutput{}, err
		}

		return FindPlacesOutput{Places: places}, nil
	})

type FindNearInput struct {
	Namespace string  `json:"namespace"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	MaxMeters int64   `json:"maxMeters"`
}

// FindNearOp retrieves places near the given coordinates, nearest first.
// Requires the 2dsphere index created by IndexPlacesOp.
var FindNearOp = operations.NewOperation(
	"doc/find-near", Version, "Find places near a point",
	func(b operations.Bundle, conn Conn, input FindNearInput) (FindPlacesOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return FindPlacesOutput{}, err
		}

		filter := bson.M{
			"location": bson.M{
				"$near": bson.M{
					"$geometry": bson.M{
						"type":        "Point",
						"coordinates": []float64{input.Longitude, input.Latitude},
					},
					"$maxDistance": input.MaxMeters,
				},
			},
		}

		var places []Place
		if err := conn.Find(b.GetContext(), ns, filter, FindOptions{}, &places); err != nil {
			return FindPlacesOutput{}, err
		}

		return FindPlacesOutput{Places: places}, nil
	})

type SearchPlacesInput struct {
	Namespace string `json:"namespace"`
	Query     string `json:"query"`
}

// SearchPlacesOp runs a text search over place names. Requires the text
// index created by IndexPlacesOp.
var SearchPlacesOp = operations.NewOperation(
	"doc/search-places", Version, "Text-search place names",
	func(b operations.Bundle, conn Conn, input SearchPlacesInput) (FindPlacesOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return FindPlacesOutput{}, err
		}

		var places []Place
		filter := bson.M{"$text": bson.M{"$search": input.Query}}
		if err := conn.Find(b.GetContext(), ns, filter, FindOptions{}, &places); err != nil {
			return FindPlacesOutput{}, err
		}

		return FindPlacesOutput{Places: places}, nil
	})

type CountByCuisineInput struct {
	Namespace string `json:"namespace"`
}

// CuisineCount is one aggregation bucket.
type CuisineCount struct {
	Cuisine string `bson:"_id" json:"cuisine"`
	Count   int64  `bson:"count" json:"count"`
}

type CountByCuisineOutput struct {
	Counts []CuisineCount `json:"counts"`
}

// CountByCuisineOp groups places by cuisine and counts each bucket. The
// grouping itself is delegated to the store's aggregation pipeline.
var CountByCuisineOp = operations.NewOperation(
	"doc/count-by-cuisine", Version, "Count places per cuisine",
	func(b operations.Bundle, conn Conn, input CountByCuisineInput) (CountByCuisineOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return CountByCuisineOutput{}, err
		}

		pipeline := mongo.Pipeline{
			{{Key: "$group", Value: bson.M{
				"_id":   "$cuisine",
				"count": bson.M{"$sum": 1},
			}}},
			{{Key: "$sort", Value: bson.M{"count": -1}}},
		}

		var counts []CuisineCount
		if err := conn.Aggregate(b.GetContext(), ns, pipeline, &counts); err != nil {
			return CountByCuisineOutput{}, err
		}

		return CountByCuisineOutput{Counts: counts}, nil
	})

type CollStatsInput struct {
	Namespace string `json:"namespace"`
}

type CollStatsOutput struct {
	Stats bson.M `json:"stats"`
}

// CollStatsOp fetches collection statistics from the store.
var CollStatsOp = operations.NewOperation(
	"doc/coll-stats", Version, "Fetch collection statistics",
	func(b operations.Bundle, conn Conn, input CollStatsInput) (CollStatsOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return CollStatsOutput{}, err
		}

		reply, err := conn.RunCommand(b.GetContext(), ns.DB, bson.D{{Key: "collStats", Value: ns.Collection}})
		if err != nil {
			return CollStatsOutput{}, err
		}

		return CollStatsOutput{Stats: reply}, nil
	})

type EnableShardingInput struct {
	Database string `json:"database"`
}

type CommandOutput struct {
	Reply bson.M `json:"reply"`
}

// EnableShardingOp enables sharding on a database. Only meaningful against a
// sharded cluster; a standalone store rejects it.
var EnableShardingOp = operations.NewOperation(
	"doc/enable-sharding", Version, "Enable sharding on a database",
	func(b operations.Bundle, conn Conn, input EnableShardingInput) (CommandOutput, error) {
		reply, err := conn.RunCommand(b.GetContext(), "admin",
			bson.D{{Key: "enableSharding", Value: input.Database}})
		if err != nil {
			return CommandOutput{}, err
		}

		return CommandOutput{Reply: reply}, nil
	})

type ShardCollectionInput struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// ShardCollectionOp shards a collection on a hashed key.
var ShardCollectionOp = operations.NewOperation(
	"doc/shard-collection", Version, "Shard a collection on a hashed key",
	func(b operations.Bundle, conn Conn, input ShardCollectionInput) (CommandOutput, error) {
		ns, err := nsOf(input.Namespace)
		if err != nil {
			return CommandOutput{}, err
		}

		reply, err := conn.RunCommand(b.GetContext(), "admin", bson.D{
			{Key: "shardCollection", Value: ns.FullName()},
			{Key: "key", Value: bson.M{input.Key: "hashed"}},
		})
		if err != nil {
			return CommandOutput{}, err
		}

		return CommandOutput{Reply: reply}, nil
	})

// Register adds the document store operation catalog to the registry so plan
// files can resolve it.
func Register(r *operations.OperationRegistry) {
	operations.RegisterOperation(r, CreateCollectionOp)
	operations.RegisterOperation(r, IndexPlacesOp)
	operations.RegisterOperation(r, InsertPlacesOp)
	operations.RegisterOperation(r, UpdateCuisineOp)
	operations.RegisterOperation(r, DeletePlaceOp)
	operations.RegisterOperation(r, FindPlacesOp)
	operations.RegisterOperation(r, FindNearOp)
	operations.RegisterOperation(r, SearchPlacesOp)
	operations.RegisterOperation(r, CountByCuisineOp)
	operations.RegisterOperation(r, CollStatsOp)
	operations.RegisterOperation(r, EnableShardingOp)
	operations.RegisterOperation(r, ShardCollectionOp)
}

// DemoSteps is the fixed demo sequence against database db. The write
// ordering (insert before update before delete) is load-bearing and must not
// be reordered.
func DemoSteps(db string) []runner.Step {
	ns := NewNamespace(db, "places")
	name := ns.FullName()

	return []runner.Step{
		runner.NewStep(CreateCollectionOp, CreateCollectionInput{
			Namespace:      name,
			RequiredFields: []string{"name", "location"},
		}),
		runner.NewStep(IndexPlacesOp, IndexPlacesInput{Namespace: name}),
		runner.NewStep(InsertPlacesOp, InsertPlacesInput{
			Namespace: name,
			Places: []Place{
				{
					Name:    "Morris Park Bake Shop",
					Cuisine: "Bakery",
					Borough: "Bronx",
					Location: GeoPoint{
						Type:        "Point",
						Coordinates: []float64{-73.856077, 40.848447},
					},
				},
				{
					Name:    "Wendys Coffee House",
					Cuisine: "Hamburgers",
					Borough: "Brooklyn",
					Location: GeoPoint{
						Type:        "Point",
						Coordinates: []float64{-73.961704, 40.662942},
					},
				},
				{
					Name:    "Riviera Caterer",
					Cuisine: "American",
					Borough: "Brooklyn",
					Location: GeoPoint{
						Type:        "Point",
						Coordinates: []float64{-73.98241999999999, 40.579505},
					},
				},
			},
		}),
		runner.NewStep(UpdateCuisineOp, UpdateCuisineInput{
			Namespace: name,
			From:      "Hamburgers",
			To:        "American",
		}),
		runner.NewStep(DeletePlaceOp, DeletePlaceInput{
			Namespace: name,
			Name:      "Riviera Caterer",
		}),
		runner.NewStep(FindPlacesOp, FindPlacesInput{
			Namespace: name,
			Cuisine:   "American",
			Limit:     10,
		}),
		runner.NewStep(FindNearOp, FindNearInput{
			Namespace: name,
			Longitude: -73.93414657,
			Latitude:  40.82302903,
			MaxMeters: 5000,
		}),
		runner.NewStep(SearchPlacesOp, SearchPlacesInput{
			Namespace: name,
			Query:     "coffee",
		}),
		runner.NewStep(CountByCuisineOp, CountByCuisineInput{Namespace: name}),
		runner.NewStep(CollStatsOp, CollStatsInput{Namespace: name}),
	}
}

// ShardingSteps is the optional sharding setup sequence. It requires a
// sharded cluster and is not part of DemoSteps.
func ShardingSteps(db string) []runner.Step {
	ns := NewNamespace(db, "places")

	return []runner.Step{
		runner.NewStep(EnableShardingOp, EnableShardingInput{Database: db}),
		runner.NewStep(ShardCollectionOp, ShardCollectionInput{
			Namespace: ns.FullName(),
			Key:       "name",
		}),
	}
}
