package cache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 🗄️ SQL 存储（gorm）
// =============================================================================

// searchCacheRow 对应 search_cache 表；时间戳以文本存储，解析失败即视为损坏
type searchCacheRow struct {
	QueryHash string `gorm:"column:query_hash;primaryKey;size:64"`
	QueryText string `gorm:"column:query_text;type:text;not null"`
	Results   string `gorm:"column:results;type:text;not null"`
	Created   string `gorm:"column:created_at;size:40;not null"`
	Expires   string `gorm:"column:expires_at;size:40;not null;index:idx_search_cache_expires_at"`
}

func (searchCacheRow) TableName() string { return "search_cache" }

// SQLStore 基于 gorm 的缓存存储，支持 sqlite / postgres / mysql
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore 创建 SQL 存储
func NewSQLStore(db *gorm.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("component", "cache"), zap.String("backend", "database")),
	}
}

func (s *SQLStore) Name() string { return "database" }

// Get 读取条目
func (s *SQLStore) Get(ctx context.Context, hash string) (*Entry, error) {
	var row searchCacheRow
	err := s.db.WithContext(ctx).Where("query_hash = ?", hash).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return decodeStored(row.QueryHash, row.QueryText, row.Results, row.Created, row.Expires)
}

// Put 以 query_hash 为冲突键 upsert
func (s *SQLStore) Put(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	row := searchCacheRow{
		QueryHash: entry.QueryHash,
		QueryText: entry.QueryText,
		Results:   string(entry.Results),
		Created:   formatTime(entry.CreatedAt),
		Expires:   formatTime(entry.ExpiresAt),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "query_hash"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		s.logger.Error("cache put failed", zap.String("query_hash", entry.QueryHash), zap.Error(err))
		return fmt.Errorf("cache put failed: %w", err)
	}
	return nil
}

// Ping 检查数据库连接
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 连接由 database.PoolManager 持有，这里不关闭
func (s *SQLStore) Close() error { return nil }
