package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// =============================================================================
// 🍃 MongoDB 存储
// =============================================================================

// MongoConfig MongoDB 存储配置
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// mongoDoc search_cache 集合中的文档，_id 即 query_hash
type mongoDoc struct {
	QueryHash string `bson:"_id"`
	QueryText string `bson:"query_text"`
	Results   string `bson:"results"`
	CreatedAt string `bson:"created_at"`
	ExpiresAt string `bson:"expires_at"`
}

func toMongoDoc(e *Entry) mongoDoc {
	return mongoDoc{
		QueryHash: e.QueryHash,
		QueryText: e.QueryText,
		Results:   string(e.Results),
		CreatedAt: formatTime(e.CreatedAt),
		ExpiresAt: formatTime(e.ExpiresAt),
	}
}

func (d mongoDoc) entry() (*Entry, error) {
	return decodeStored(d.QueryHash, d.QueryText, d.Results, d.CreatedAt, d.ExpiresAt)
}

// MongoStore 基于 MongoDB 的缓存存储
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore 连接 MongoDB 并创建存储
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "search_cache"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := newMongoStore(client, cfg.Database, cfg.Collection, logger)
	s.logger.Info("mongo cache store initialized",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

func newMongoStore(client *mongo.Client, database, collection string, logger *zap.Logger) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger.With(zap.String("component", "cache"), zap.String("backend", "mongo")),
	}
}

func (s *MongoStore) Name() string { return "mongo" }

// Get 读取条目
func (s *MongoStore) Get(ctx context.Context, hash string) (*Entry, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: hash}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return doc.entry()
}

// Put ReplaceOne + upsert
func (s *MongoStore) Put(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: entry.QueryHash}},
		toMongoDoc(entry),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		s.logger.Error("cache put failed", zap.String("query_hash", entry.QueryHash), zap.Error(err))
		return fmt.Errorf("cache put failed: %w", err)
	}
	return nil
}

// Ping 检查 MongoDB 连接
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
