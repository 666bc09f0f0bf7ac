package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DBStore struct {
	client           *mongo.Client
	events           *mongo.Collection
	operationTimeout time.Duration
}

var SessionIdEmptyError = errors.New("session_id is empty")

func (ds *DBStore) Record(ctx context.Context, event *Event) error {
	if event.SessionID == "" {
		return SessionIdEmptyError
	}
	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	if _, err := ds.events.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unique key conflicts: %w", err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}
	logger.DebugF("Event saved: session_id=%s, kind=%s", event.SessionID, event.Kind)
	return nil
}

func (ds *DBStore) List(ctx context.Context, sessionID string) ([]*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	filter := bson.D{}
	if sessionID != "" {
		filter = bson.D{{Key: "session_id", Value: sessionID}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}})

	startTime := time.Now()
	cursor, err := ds.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("database operation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	logger.DebugF("event query cost: %v", time.Since(startTime))
	return events, nil
}

// Invoke disconnects the client; it is registered with the cleaner.
func (ds *DBStore) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()
	return ds.client.Disconnect(ctx)
}
