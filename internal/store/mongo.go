package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultMongoDatabase is used when the URI names no database.
	DefaultMongoDatabase = "habitbot"
	// MongoSessionCollection holds one document per chat, keyed by _id.
	MongoSessionCollection = "sessions"
)

type mongoSession struct {
	ChatKey   string    `bson:"_id"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoSessionStore keeps session documents in a MongoDB collection.
type MongoSessionStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSessionStore connects to uri and uses the sessions collection of dbName.
func NewMongoSessionStore(ctx context.Context, uri, dbName string) (*MongoSessionStore, error) {
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		slog.Error("MongoSessionStore ping failed", "error", err)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	slog.Debug("MongoSessionStore connected", "database", dbName)
	return &MongoSessionStore{
		client:     client,
		collection: client.Database(dbName).Collection(MongoSessionCollection),
	}, nil
}

// GetSession loads the raw session document for chatKey.
func (m *MongoSessionStore) GetSession(ctx context.Context, chatKey string) ([]byte, error) {
	var doc mongoSession
	err := m.collection.FindOne(ctx, bson.M{"_id": chatKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		slog.Error("MongoSessionStore GetSession failed", "error", err, "chatKey", chatKey)
		return nil, fmt.Errorf("failed to load session for %s: %w", chatKey, err)
	}
	return []byte(doc.Data), nil
}

// SetSession upserts the session document for chatKey.
func (m *MongoSessionStore) SetSession(ctx context.Context, chatKey string, data []byte) error {
	doc := mongoSession{ChatKey: chatKey, Data: string(data), UpdatedAt: time.Now()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": chatKey}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		slog.Error("MongoSessionStore SetSession failed", "error", err, "chatKey", chatKey)
		return fmt.Errorf("failed to save session for %s: %w", chatKey, err)
	}
	return nil
}

// DeleteSession removes the session for chatKey.
func (m *MongoSessionStore) DeleteSession(ctx context.Context, chatKey string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": chatKey})
	return err
}

// Close disconnects the client.
func (m *MongoSessionStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

var _ SessionStore = (*MongoSessionStore)(nil)
