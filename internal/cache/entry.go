package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// 📦 缓存条目
// =============================================================================

// timeLayout 固定宽度的 UTC 时间格式，文本比较与时间先后一致
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")
	// ErrCorrupted 存储内容无法解析（JSON 或时间戳损坏），调用方按未命中处理
	ErrCorrupted = errors.New("cache entry corrupted")
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("cache store is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// IsCorrupted 判断是否为缓存损坏错误
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrCorrupted)
}

// Entry 一条搜索结果缓存
type Entry struct {
	QueryHash string          `json:"query_hash"`
	QueryText string          `json:"query_text"`
	Results   json.RawMessage `json:"results"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Live 条目在 now 时刻是否仍然有效（now >= ExpiresAt 即视为不存在）
func (e *Entry) Live(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

// Validate 写入前校验
func (e *Entry) Validate() error {
	if e == nil {
		return errors.New("cache entry is nil")
	}
	if e.QueryHash == "" {
		return errors.New("cache entry query_hash is empty")
	}
	if !json.Valid(e.Results) {
		return errors.New("cache entry results is not valid JSON")
	}
	if e.ExpiresAt.IsZero() {
		return errors.New("cache entry expires_at is zero")
	}
	return nil
}

// Store 搜索缓存存储接口，实现必须支持并发读写不同键与单键原子 upsert
type Store interface {
	// Get 返回 hash 对应的条目，不存在返回 ErrCacheMiss，损坏返回 ErrCorrupted
	Get(ctx context.Context, hash string) (*Entry, error)
	// Put 插入或整体替换条目
	Put(ctx context.Context, entry *Entry) error
	Ping(ctx context.Context) error
	Close() error
	// Name 后端名称，用于日志与指标
	Name() string
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", ErrCorrupted, field, s, err)
	}
	return t, nil
}

// decodeStored 将各后端的文本列还原为 Entry
func decodeStored(hash, queryText, results, createdAt, expiresAt string) (*Entry, error) {
	if !json.Valid([]byte(results)) {
		return nil, fmt.Errorf("%w: results for %s is not valid JSON", ErrCorrupted, hash)
	}
	created, err := parseTime("created_at", createdAt)
	if err != nil {
		return nil, err
	}
	expires, err := parseTime("expires_at", expiresAt)
	if err != nil {
		return nil, err
	}
	return &Entry{
		QueryHash: hash,
		QueryText: queryText,
		Results:   json.RawMessage(results),
		CreatedAt: created,
		ExpiresAt: expires,
	}, nil
}
