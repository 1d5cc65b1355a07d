package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SimilaritySearcher 知识库相似度检索的底层引擎，结果按相关度降序
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, query string, topK int) ([]KBPassage, error)
}

// SimilaritySearchFunc 函数适配器
type SimilaritySearchFunc func(ctx context.Context, query string, topK int) ([]KBPassage, error)

func (f SimilaritySearchFunc) SimilaritySearch(ctx context.Context, query string, topK int) ([]KBPassage, error) {
	return f(ctx, query, topK)
}

// KnowledgeBaseConfig 知识库检索配置
type KnowledgeBaseConfig struct {
	DefaultTopK int           `json:"default_top_k"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultKnowledgeBaseConfig 返回默认配置
func DefaultKnowledgeBaseConfig() KnowledgeBaseConfig {
	return KnowledgeBaseConfig{
		DefaultTopK: 4,
		Timeout:     30 * time.Second,
	}
}

// KnowledgeBaseRetriever 包装相似度引擎，任何错误都降级为空结果
type KnowledgeBaseRetriever struct {
	searcher SimilaritySearcher
	config   KnowledgeBaseConfig
	logger   *zap.Logger
}

// NewKnowledgeBaseRetriever 创建知识库检索器
func NewKnowledgeBaseRetriever(searcher SimilaritySearcher, config KnowledgeBaseConfig, logger *zap.Logger) *KnowledgeBaseRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 4
	}
	return &KnowledgeBaseRetriever{
		searcher: searcher,
		config:   config,
		logger:   logger.With(zap.String("component", "kb_retriever")),
	}
}

// Search 返回最多 topK 条片段；topK <= 0 时使用默认值
func (r *KnowledgeBaseRetriever) Search(ctx context.Context, query string, topK int) []KBPassage {
	return r.SearchOutcome(ctx, query, topK).Value
}

// SearchOutcome 与 Search 相同，但保留失败原因
func (r *KnowledgeBaseRetriever) SearchOutcome(ctx context.Context, query string, topK int) Outcome[[]KBPassage] {
	if topK <= 0 {
		topK = r.config.DefaultTopK
	}

	passages, err := r.search(ctx, query, topK)
	if err != nil {
		r.logger.Warn("knowledge base search failed",
			zap.String("query", truncate(query, 80)),
			zap.Int("top_k", topK),
			zap.Error(err))
		return Degraded([]KBPassage{}, err)
	}

	if len(passages) > topK {
		passages = passages[:topK]
	}
	if passages == nil {
		passages = []KBPassage{}
	}
	r.logger.Debug("knowledge base search completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(passages)))
	return Succeeded(passages)
}

func (r *KnowledgeBaseRetriever) search(ctx context.Context, query string, topK int) (passages []KBPassage, err error) {
	if r.searcher == nil {
		return nil, errors.New("similarity searcher not configured")
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			passages, err = nil, fmt.Errorf("similarity search panicked: %v", rec)
		}
	}()
	return r.searcher.SimilaritySearch(ctx, query, topK)
}

// =============================================================================
// 🔎 向量检索：embedding + 向量库
// =============================================================================

// QueryEmbedder 将查询文本向量化
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// VectorIndex 按向量检索片段
type VectorIndex interface {
	Search(ctx context.Context, vector []float64, topK int) ([]KBPassage, error)
}

// VectorSearcher 先向量化查询，再在向量库中检索
type VectorSearcher struct {
	embedder QueryEmbedder
	index    VectorIndex
}

// NewVectorSearcher 创建向量检索器
func NewVectorSearcher(embedder QueryEmbedder, index VectorIndex) *VectorSearcher {
	return &VectorSearcher{embedder: embedder, index: index}
}

func (v *VectorSearcher) SimilaritySearch(ctx context.Context, query string, topK int) ([]KBPassage, error) {
	vector, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	passages, err := v.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return passages, nil
}
