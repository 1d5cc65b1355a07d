package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 存储
// =============================================================================

// RedisConfig Redis 存储配置
type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`

	// KeyPrefix 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// Retention 物理保留时长，0 表示不设置 Redis 过期
	Retention time.Duration `yaml:"retention" json:"retention"`
}

// DefaultRedisConfig 返回默认 Redis 存储配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "nexus:search_cache:",
	}
}

// redisEnvelope 存入 Redis 的 JSON 结构
type redisEnvelope struct {
	QueryText string          `json:"query_text"`
	Results   json.RawMessage `json:"results"`
	CreatedAt string          `json:"created_at"`
	ExpiresAt string          `json:"expires_at"`
}

// RedisStore 基于 Redis 的缓存存储
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore 连接 Redis 并创建存储
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache"), zap.String("backend", "redis")),
	}
	s.logger.Info("redis cache store initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
	)
	return s, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) key(hash string) string {
	return s.config.KeyPrefix + hash
}

// Get 读取条目
func (s *RedisStore) Get(ctx context.Context, hash string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	val, err := s.client.Get(ctx, s.key(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return decodeStored(hash, env.QueryText, string(env.Results), env.CreatedAt, env.ExpiresAt)
}

// Put 写入条目，SET 覆盖即为 upsert
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	data, err := json.Marshal(redisEnvelope{
		QueryText: entry.QueryText,
		Results:   entry.Results,
		CreatedAt: formatTime(entry.CreatedAt),
		ExpiresAt: formatTime(entry.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.key(entry.QueryHash), data, s.config.Retention).Err(); err != nil {
		s.logger.Error("cache put failed", zap.String("query_hash", entry.QueryHash), zap.Error(err))
		return fmt.Errorf("cache put failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close 关闭存储
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing redis cache store")
	return s.client.Close()
}
