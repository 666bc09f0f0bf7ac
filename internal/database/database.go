package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	c "github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func databaseURL(cfg c.DatabaseConfig) string {
	if cfg.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)
	}
	// 编码特殊字符
	encodedUser := url.QueryEscape(cfg.Username)
	encodedPass := url.QueryEscape(cfg.Password)
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		cfg.Host,
		cfg.Port,
	)
}

func clientOptions(cfg c.DatabaseConfig, appName string) *options.ClientOptions {
	clientOptions := options.Client().ApplyURI(databaseURL(cfg)).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTime(cfg.ConnectIdleTimeout))
	// 超时限制
	clientOptions.SetConnectTimeout(utils.ParseStringTime(cfg.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.ParseStringTime(cfg.SocketTimeout))
	// 心跳包
	clientOptions.SetHeartbeatInterval(utils.ParseStringTimeOr(cfg.Heartbeat, 10*time.Second))
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{InsecureSkipVerify: false})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %+v", evt)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %+v", evt)
			}
		},
	})
	return clientOptions
}

// ConnectDatabase opens the MongoDB journal described by cfg.
func ConnectDatabase(cfg c.DatabaseConfig, appName string) (*DBStore, error) {
	logger.DebugF("Connecting to database...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(cfg, appName))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %v", err)
	}

	events := client.Database(cfg.Database).Collection(EventCollectionName)
	_, err = events.Indexes().CreateOne(
		ctx,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "time", Value: 1}},
			Options: options.Index().SetName("session_events_session_time"),
		},
	)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %v", err)
	}

	return &DBStore{
		client:           client,
		events:           events,
		operationTimeout: utils.ParseStringTimeOr(cfg.OperationTimeout, 5*time.Second),
	}, nil
}

// Open returns the MongoDB journal behind a write queue when enabled, the
// in-memory one otherwise.
func Open(config c.Config) (Journal, error) {
	if !config.Database.Enabled {
		return NewMemoryStore(0), nil
	}
	store, err := ConnectDatabase(config.Database, config.AppName)
	if err != nil {
		return nil, err
	}
	return NewAsyncJournal(store, 256, store.operationTimeout), nil
}
