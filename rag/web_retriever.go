package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/nexus/internal/cache"
)

// WebSearcher 外部 Web 搜索服务，结果按服务方相关度排序
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebPassage, error)
	Name() string
}

// WebSearchFunc 函数适配器
type WebSearchFunc func(ctx context.Context, query string, maxResults int) ([]WebPassage, error)

func (f WebSearchFunc) Search(ctx context.Context, query string, maxResults int) ([]WebPassage, error) {
	return f(ctx, query, maxResults)
}

func (f WebSearchFunc) Name() string { return "func" }

// ResultCache 搜索结果缓存，由 internal/cache 的各个 Store 实现
type ResultCache interface {
	Get(ctx context.Context, hash string) (*cache.Entry, error)
	Put(ctx context.Context, entry *cache.Entry) error
}

// CacheKey 规范化查询（去空白、小写）的 MD5 十六进制摘要。
// 与 max_results 和策略无关。
func CacheKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// WebRetrieverConfig Web 检索配置
type WebRetrieverConfig struct {
	// CacheTTL 新写入条目的有效期
	CacheTTL time.Duration `json:"cache_ttl"`
	// Timeout 单次外部搜索超时
	Timeout time.Duration `json:"timeout"`
}

// DefaultWebRetrieverConfig 返回默认配置
func DefaultWebRetrieverConfig() WebRetrieverConfig {
	return WebRetrieverConfig{
		CacheTTL: 24 * time.Hour,
		Timeout:  15 * time.Second,
	}
}

// WebRetrieverOption 可选项
type WebRetrieverOption func(*WebRetriever)

// WithWebClock 注入时钟
func WithWebClock(now func() time.Time) WebRetrieverOption {
	return func(w *WebRetriever) {
		if now != nil {
			w.now = now
		}
	}
}

// WebRetriever Web 搜索 + 持久化缓存。
// 命中有效缓存时原样返回缓存结果，否则调用外部搜索并在结果非空时写回缓存。
type WebRetriever struct {
	searcher WebSearcher
	cache    ResultCache
	config   WebRetrieverConfig
	logger   *zap.Logger
	now      func() time.Time

	// 同一键上并发的未命中只触发一次外部搜索
	group singleflight.Group
}

// NewWebRetriever 创建 Web 检索器；cache 为 nil 时不使用缓存
func NewWebRetriever(searcher WebSearcher, resultCache ResultCache, config WebRetrieverConfig, logger *zap.Logger, opts ...WebRetrieverOption) *WebRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	w := &WebRetriever{
		searcher: searcher,
		cache:    resultCache,
		config:   config,
		logger:   logger.With(zap.String("component", "web_retriever")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Search 返回 Web 结果，任何失败都返回空序列
func (w *WebRetriever) Search(ctx context.Context, query string, maxResults int) []WebPassage {
	return w.SearchOutcome(ctx, query, maxResults).Value
}

// SearchOutcome 与 Search 相同，但保留失败原因与缓存命中标记
func (w *WebRetriever) SearchOutcome(ctx context.Context, query string, maxResults int) Outcome[[]WebPassage] {
	key := CacheKey(query)

	if cached, ok := w.lookup(ctx, key); ok {
		w.logger.Debug("web search cache hit",
			zap.String("query_hash", key),
			zap.Int("results", len(cached)))
		return Cached(cached)
	}

	v, err, shared := w.group.Do(key, func() (any, error) {
		// 上一轮 Do 可能已经写回缓存
		if cached, ok := w.lookup(ctx, key); ok {
			return flight{results: cached, fromCache: true}, nil
		}
		results, err := w.fetch(ctx, key, query, maxResults)
		return flight{results: results}, err
	})
	if err != nil {
		w.logger.Warn("web search failed",
			zap.String("query", truncate(query, 80)),
			zap.Int("max_results", maxResults),
			zap.Error(err))
		return Degraded([]WebPassage{}, err)
	}

	f := v.(flight)
	results := f.results
	if shared {
		// 共享结果的调用方各自持有副本
		results = append(make([]WebPassage, 0, len(results)), results...)
	}
	if f.fromCache {
		return Cached(results)
	}
	return Succeeded(results)
}

type flight struct {
	results   []WebPassage
	fromCache bool
}

// lookup 读取有效缓存；未命中、过期、损坏或读取失败都视为未命中
func (w *WebRetriever) lookup(ctx context.Context, key string) ([]WebPassage, bool) {
	if w.cache == nil {
		return nil, false
	}

	entry, err := w.cache.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrCacheMiss):
		w.logger.Debug("web search cache miss", zap.String("query_hash", key))
		return nil, false
	case errors.Is(err, cache.ErrCorrupted):
		w.logger.Warn("corrupted cache entry treated as miss", zap.String("query_hash", key), zap.Error(err))
		return nil, false
	default:
		w.logger.Warn("cache read failed, treating as miss", zap.String("query_hash", key), zap.Error(err))
		return nil, false
	}

	if !entry.Live(w.now()) {
		w.logger.Debug("web search cache entry expired",
			zap.String("query_hash", key),
			zap.Time("expires_at", entry.ExpiresAt))
		return nil, false
	}

	var results []WebPassage
	if err := json.Unmarshal(entry.Results, &results); err != nil {
		w.logger.Warn("undecodable cache entry treated as miss", zap.String("query_hash", key), zap.Error(err))
		return nil, false
	}
	if len(results) == 0 {
		return nil, false
	}
	return results, true
}

func (w *WebRetriever) fetch(ctx context.Context, key, query string, maxResults int) ([]WebPassage, error) {
	if w.searcher == nil {
		return nil, errors.New("web searcher not configured")
	}

	// singleflight 的调用方共享本次请求，不随第一个调用方取消
	ctx = context.WithoutCancel(ctx)
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	results, err := w.safeSearch(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", w.searcher.Name(), err)
	}
	if results == nil {
		results = []WebPassage{}
	}

	if len(results) > 0 {
		w.store(ctx, key, query, results)
	}
	return results, nil
}

func (w *WebRetriever) safeSearch(ctx context.Context, query string, maxResults int) (results []WebPassage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			results, err = nil, fmt.Errorf("web search panicked: %v", rec)
		}
	}()
	return w.searcher.Search(ctx, query, maxResults)
}

// store 写回缓存，失败只记录日志
func (w *WebRetriever) store(ctx context.Context, key, query string, results []WebPassage) {
	if w.cache == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		w.logger.Warn("failed to encode web results for cache", zap.Error(err))
		return
	}

	now := w.now()
	entry := &cache.Entry{
		QueryHash: key,
		QueryText: query,
		Results:   data,
		CreatedAt: now,
		ExpiresAt: now.Add(w.config.CacheTTL),
	}
	if err := w.cache.Put(ctx, entry); err != nil {
		w.logger.Warn("failed to save web results to cache", zap.String("query_hash", key), zap.Error(err))
		return
	}
	w.logger.Debug("web results cached",
		zap.String("query_hash", key),
		zap.Int("results", len(results)),
		zap.Time("expires_at", entry.ExpiresAt))
}
