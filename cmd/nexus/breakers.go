package main

import (
	"context"

	"github.com/BaSui01/nexus/internal/circuitbreaker"
	"github.com/BaSui01/nexus/rag"
)

// =============================================================================
// 🔌 检索熔断
// =============================================================================

// guardedSimilaritySearcher 在熔断保护下访问向量库
type guardedSimilaritySearcher struct {
	breaker *circuitbreaker.Breaker
	next    rag.SimilaritySearcher
}

func (g guardedSimilaritySearcher) SimilaritySearch(ctx context.Context, query string, topK int) ([]rag.KBPassage, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) ([]rag.KBPassage, error) {
		return g.next.SimilaritySearch(ctx, query, topK)
	})
}

// guardedWebSearcher 在熔断保护下访问 Web 搜索；缓存命中不经过熔断器
type guardedWebSearcher struct {
	breaker *circuitbreaker.Breaker
	next    rag.WebSearcher
}

func (g guardedWebSearcher) Search(ctx context.Context, query string, maxResults int) ([]rag.WebPassage, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) ([]rag.WebPassage, error) {
		return g.next.Search(ctx, query, maxResults)
	})
}

func (g guardedWebSearcher) Name() string { return g.next.Name() }

// newBreaker 按配置创建熔断器，状态变更上报到指标
func (a *App) newBreaker(name string) *circuitbreaker.Breaker {
	cfg := a.cfg.Breaker
	return circuitbreaker.New(circuitbreaker.Config{
		Name:             name,
		Threshold:        cfg.Threshold,
		ResetTimeout:     cfg.ResetTimeout,
		HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		OnStateChange:    a.Collector.RecordBreakerTransition,
	}, a.logger)
}
