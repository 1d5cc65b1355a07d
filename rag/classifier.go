package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nexus/llm"
)

// ClassificationResult 查询分类结果，每次查询生成一次，不持久化
type ClassificationResult struct {
	Type           QueryType `json:"type"`
	HasTemporal    bool      `json:"has_temporal"`
	SearchStrategy Strategy  `json:"search_strategy"`
}

// DefaultClassification 分类失败时的保守默认值
func DefaultClassification() ClassificationResult {
	return ClassificationResult{
		Type:           QueryTypeGeneral,
		HasTemporal:    false,
		SearchStrategy: StrategyHybrid,
	}
}

// ClassifierConfig 分类器配置
type ClassifierConfig struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultClassifierConfig 返回默认分类器配置
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0,
		MaxTokens:   200,
		Timeout:     30 * time.Second,
	}
}

const classifierPrompt = `Analyze the following user query to determine the best information retrieval strategy.

Query: %q

Task:
1. Determine the query type (explanation, factual, comparison, or general).
2. Check for temporal indicators (does it ask for "recent", "latest", "news", or a specific recent year?).
3. Decide the search strategy:
   - "kb_only": For queries about specific technical concepts found in standard AI documentation (e.g., "What is RAG?", "Explain transformers").
   - "web_only": For queries about current events, specific news, or general knowledge not likely in a technical KB (e.g., "AI news this week", "Weather in NY").
   - "hybrid": For queries that might benefit from both technical depth and recent context (e.g., "Newest improvements in RAG", "Comparison of latest LLMs").

Return ONLY a valid JSON object with the following structure:
{
    "type": "explanation|factual|comparison|general",
    "has_temporal": boolean,
    "search_strategy": "kb_only|web_only|hybrid"
}`

// Classifier 使用 LLM 对查询分类并推荐检索策略
type Classifier struct {
	provider llm.Provider
	config   ClassifierConfig
	logger   *zap.Logger
}

// NewClassifier 创建分类器
func NewClassifier(provider llm.Provider, config ClassifierConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "classifier")),
	}
}

// BuildClassifierPrompt 渲染分类提示词
func BuildClassifierPrompt(query string) string {
	return fmt.Sprintf(classifierPrompt, query)
}

// Classify 返回分类结果，任何失败都返回 DefaultClassification
func (c *Classifier) Classify(ctx context.Context, query string) ClassificationResult {
	return c.ClassifyOutcome(ctx, query).Value
}

// ClassifyOutcome 与 Classify 相同，但保留失败原因
func (c *Classifier) ClassifyOutcome(ctx context.Context, query string) Outcome[ClassificationResult] {
	result, err := c.classify(ctx, query)
	if err != nil {
		c.logger.Warn("query classification failed, using default strategy",
			zap.String("query", truncate(query, 80)),
			zap.Error(err))
		return Degraded(DefaultClassification(), err)
	}

	c.logger.Debug("query classified",
		zap.String("type", string(result.Type)),
		zap.Bool("has_temporal", result.HasTemporal),
		zap.Stringer("strategy", result.SearchStrategy))
	return Succeeded(result)
}

func (c *Classifier) classify(ctx context.Context, query string) (ClassificationResult, error) {
	if c.provider == nil {
		return ClassificationResult{}, errors.New("classifier provider not configured")
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	resp, err := c.provider.Completion(ctx, &llm.ChatRequest{
		Model: c.config.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: BuildClassifierPrompt(query)},
		},
		MaxTokens:      c.config.MaxTokens,
		Temperature:    c.config.Temperature,
		ResponseFormat: llm.ResponseFormatJSON,
	})
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("classification request failed: %w", err)
	}

	content, err := resp.FirstContent()
	if err != nil {
		return ClassificationResult{}, err
	}
	return ParseClassification(content)
}

// ParseClassification 从模型输出中提取最外层 JSON 对象并规范化
func ParseClassification(content string) (ClassificationResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ClassificationResult{}, fmt.Errorf("no JSON object in classifier output: %q", truncate(content, 120))
	}

	var raw struct {
		Type           string `json:"type"`
		HasTemporal    bool   `json:"has_temporal"`
		SearchStrategy string `json:"search_strategy"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return ClassificationResult{}, fmt.Errorf("malformed classifier JSON: %w", err)
	}

	strategy, _ := ParseStrategy(raw.SearchStrategy)
	return ClassificationResult{
		Type:           ParseQueryType(raw.Type),
		HasTemporal:    raw.HasTemporal,
		SearchStrategy: strategy,
	}, nil
}

// truncate 按 rune 截断，用于日志
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
