package rag

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// KBSearcher 知识库检索边界
type KBSearcher interface {
	SearchOutcome(ctx context.Context, query string, topK int) Outcome[[]KBPassage]
}

// WebSearch Web 检索边界
type WebSearch interface {
	SearchOutcome(ctx context.Context, query string, maxResults int) Outcome[[]WebPassage]
}

// ResearchConfig 各策略下的检索数量
type ResearchConfig struct {
	KBTopK             int `json:"kb_top_k"`             // kb_only
	FallbackWebResults int `json:"fallback_web_results"` // kb_only 空结果回退
	WebOnlyResults     int `json:"web_only_results"`     // web_only
	HybridKBTopK       int `json:"hybrid_kb_top_k"`      // hybrid
	HybridWebResults   int `json:"hybrid_web_results"`   // hybrid
}

// DefaultResearchConfig 返回默认配置
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		KBTopK:             4,
		FallbackWebResults: 3,
		WebOnlyResults:     5,
		HybridKBTopK:       3,
		HybridWebResults:   3,
	}
}

// RetrievalCall 一次检索调用的记录
type RetrievalCall struct {
	Source    SourceType
	Requested int
	Results   int
	Err       error
	FromCache bool
	Duration  time.Duration
}

// ResearchResult 检索编排结果
type ResearchResult struct {
	KBResults  []KBPassage  `json:"kb_results"`
	WebResults []WebPassage `json:"web_results"`
	Strategy   Strategy     `json:"strategy_used"`
	// Fallback kb_only 因知识库为空回退到了 Web
	Fallback bool            `json:"fallback"`
	Calls    []RetrievalCall `json:"-"`
}

// Researcher 按策略驱动知识库与 Web 检索
type Researcher struct {
	kb     KBSearcher
	web    WebSearch
	config ResearchConfig
	logger *zap.Logger
}

// NewResearcher 创建检索编排器
func NewResearcher(kb KBSearcher, web WebSearch, config ResearchConfig, logger *zap.Logger) *Researcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultResearchConfig()
	if config.KBTopK <= 0 {
		config.KBTopK = defaults.KBTopK
	}
	if config.FallbackWebResults <= 0 {
		config.FallbackWebResults = defaults.FallbackWebResults
	}
	if config.WebOnlyResults <= 0 {
		config.WebOnlyResults = defaults.WebOnlyResults
	}
	if config.HybridKBTopK <= 0 {
		config.HybridKBTopK = defaults.HybridKBTopK
	}
	if config.HybridWebResults <= 0 {
		config.HybridWebResults = defaults.HybridWebResults
	}
	return &Researcher{
		kb:     kb,
		web:    web,
		config: config,
		logger: logger.With(zap.String("component", "researcher")),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Research 按策略执行检索；知识库先于 Web，顺序执行
func (r *Researcher) Research(ctx context.Context, query string, strategy Strategy) ResearchResult {
	result := ResearchResult{
		KBResults:  []KBPassage{},
		WebResults: []WebPassage{},
		Strategy:   strategy,
	}

	switch strategy {
	case StrategyKBOnly:
		result.KBResults = r.searchKB(ctx, &result, query, r.config.KBTopK)
		if len(result.KBResults) == 0 {
			r.logger.Info("no knowledge base results, falling back to web search")
			result.Fallback = true
			result.WebResults = r.searchWeb(ctx, &result, query, r.config.FallbackWebResults)
		}
	case StrategyWebOnly:
		result.WebResults = r.searchWeb(ctx, &result, query, r.config.WebOnlyResults)
	default:
		result.Strategy = StrategyHybrid
		result.KBResults = r.searchKB(ctx, &result, query, r.config.HybridKBTopK)
		result.WebResults = r.searchWeb(ctx, &result, query, r.config.HybridWebResults)
	}

	r.logger.Debug("research completed",
		zap.Stringer("strategy", result.Strategy),
		zap.Int("kb_results", len(result.KBResults)),
		zap.Int("web_results", len(result.WebResults)),
		zap.Bool("fallback", result.Fallback))
	return result
}

func (r *Researcher) searchKB(ctx context.Context, result *ResearchResult, query string, topK int) []KBPassage {
	start := time.Now()
	out := r.kb.SearchOutcome(ctx, query, topK)
	result.Calls = append(result.Calls, RetrievalCall{
		Source:    SourceKB,
		Requested: topK,
		Results:   len(out.Value),
		Err:       out.Err,
		Duration:  time.Since(start),
	})
	if out.Value == nil {
		return []KBPassage{}
	}
	return out.Value
}

func (r *Researcher) searchWeb(ctx context.Context, result *ResearchResult, query string, maxResults int) []WebPassage {
	start := time.Now()
	out := r.web.SearchOutcome(ctx, query, maxResults)
	result.Calls = append(result.Calls, RetrievalCall{
		Source:    SourceWeb,
		Requested: maxResults,
		Results:   len(out.Value),
		Err:       out.Err,
		FromCache: out.FromCache,
		Duration:  time.Since(start),
	})
	if out.Value == nil {
		return []WebPassage{}
	}
	return out.Value
}
