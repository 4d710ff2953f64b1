package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoCollection = "site_config"
	mongoDocID      = 1
)

// mongoDoc is the stored shape. Data is kept as a JSON string so the
// document bytes round-trip verbatim.
type mongoDoc struct {
	ID        int       `bson:"_id"`
	Data      string    `bson:"data"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *mongoDoc) document() *Document {
	return &Document{Data: json.RawMessage(d.Data), Version: d.Version, UpdatedAt: d.UpdatedAt.UTC()}
}

// MongoStore keeps the site configuration as a single MongoDB document.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

var _ ConfigRepository = (*MongoStore)(nil)

// NewMongoStore connects to uri and uses the site_config collection of database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
		now:    time.Now,
	}, nil
}

// Close disconnects the client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Ping checks server connectivity.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Get returns the stored document or ErrNotFound.
func (m *MongoStore) Get(ctx context.Context) (*Document, error) {
	var d mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": mongoDocID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find site config: %w", err)
	}
	return d.document(), nil
}

// Put inserts or replaces the document.
func (m *MongoStore) Put(ctx context.Context, data json.RawMessage) (*Document, error) {
	update := bson.M{
		"$set": bson.M{"data": string(data), "updated_at": m.now().UTC()},
		"$inc": bson.M{"version": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var d mongoDoc
	if err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": mongoDocID}, update, opts).Decode(&d); err != nil {
		return nil, fmt.Errorf("upsert site config: %w", err)
	}
	return d.document(), nil
}

// CompareAndPut writes data only if the stored version equals expectedVersion.
func (m *MongoStore) CompareAndPut(ctx context.Context, data json.RawMessage, expectedVersion int64) (*Document, error) {
	now := m.now().UTC()

	if expectedVersion == 0 {
		d := mongoDoc{ID: mongoDocID, Data: string(data), Version: 1, UpdatedAt: now}
		if _, err := m.coll.InsertOne(ctx, d); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrConflict
			}
			return nil, fmt.Errorf("insert site config: %w", err)
		}
		return d.document(), nil
	}

	filter := bson.M{"_id": mongoDocID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{"data": string(data), "updated_at": now},
		"$inc": bson.M{"version": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d mongoDoc
	err := m.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("compare-and-put site config: %w", err)
	}
	return d.document(), nil
}
