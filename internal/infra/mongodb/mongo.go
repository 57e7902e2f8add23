// Package mongodb stores records in a MongoDB collection.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dvloznov/ledgersync/internal/logger"
)

// RecordsCollection is the collection holding records.
const RecordsCollection = "records"

// DataStore defines the collection operations the record store uses.
type DataStore interface {
	InsertMany(
		ctx context.Context,
		documents []interface{},
		opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	Find(
		ctx context.Context,
		filter interface{},
		opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(
		ctx context.Context,
		filter interface{},
		opts ...*options.CountOptions) (int64, error)
}

// CollectionProvider defines the interface for obtaining a collection.
type CollectionProvider interface {
	Collection(name string) DataStore
}

// MongoProvider adapts a *mongo.Database to CollectionProvider.
type MongoProvider struct {
	db *mongo.Database
}

// NewMongoProvider creates a MongoProvider for database on client.
func NewMongoProvider(client *mongo.Client, database string) *MongoProvider {
	return &MongoProvider{db: client.Database(database)}
}

// Collection returns a DataStore for the given collection name.
func (p *MongoProvider) Collection(name string) DataStore {
	return p.db.Collection(name)
}

// EnsureIndexes creates the query index of the records collection.
// Uniqueness of original_id comes from it being the document _id.
func (p *MongoProvider) EnsureIndexes(ctx context.Context) error {
	_, err := p.db.Collection(RecordsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "period_start", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: %w", err)
	}
	return nil
}

// Connect establishes a connection to MongoDB and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	log := logger.FromContext(ctx)
	log.Debug().Msg("Attempting to connect to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("Successfully established connection to MongoDB")
	return client, nil
}
