package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nexus/llm"
	"github.com/BaSui01/nexus/llm/tokenizer"
)

const (
	noKBResults  = "No Knowledge Base results available."
	noWebResults = "No Web Search results available."
)

// FormatKBResults 渲染知识库引用块，序号从 1 开始
func FormatKBResults(results []KBPassage) string {
	if len(results) == 0 {
		return noKBResults
	}
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		source := r.Source
		if source == "" {
			source = "Unknown Doc"
		}
		blocks = append(blocks, fmt.Sprintf("Source [%d] (KB: %s):\n%s\n", i+1, source, strings.TrimSpace(r.Content)))
	}
	return strings.Join(blocks, "\n")
}

// FormatWebResults 渲染 Web 引用块，序号从 1 开始
func FormatWebResults(results []WebPassage) string {
	if len(results) == 0 {
		return noWebResults
	}
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		u := r.URL
		if u == "" {
			u = "No URL"
		}
		blocks = append(blocks, fmt.Sprintf("Source [%d] (Web: %s - %s):\n%s\n", i+1, title, u, strings.TrimSpace(r.Content)))
	}
	return strings.Join(blocks, "\n")
}

const synthesisPrompt = `You are Nexus, an advanced research assistant. You are analyzing a user query using information from a local Knowledge Base (KB) and Web Search results.

USER QUERY: %q

--------------------------------------------------
KNOWLEDGE BASE RESULTS (High Technical Authority):
%s
--------------------------------------------------

--------------------------------------------------
WEB SEARCH RESULTS (Recent Context & Broad Info):
%s
--------------------------------------------------

INSTRUCTIONS:
1. Synthesize a comprehensive answer that directly addresses the User Query.
2. Source Prioritization:
   - Use KB results for definitions, core technical concepts, and established facts.
   - Use Web results for recent news, up-to-date benchmarks, or when KB is silent.
3. Citation Style:
   - Cite KB sources as: [KB: filename]
   - Cite Web sources as: [Web: Title]
   - Embed citations naturally at the end of sentences where the info is used.
4. Structure:
   - Start with a direct answer or definition.
   - Provide detailed explanation/key points.
   - If sources conflict, explicitly mention the discrepancy.
5. If NEITHER source provides relevant info, admit it honestly. Do not hallucinate.

FINAL ANSWER:`

// BuildSynthesisPrompt 渲染合成提示词
func BuildSynthesisPrompt(query string, kb []KBPassage, web []WebPassage) string {
	return fmt.Sprintf(synthesisPrompt, query, FormatKBResults(kb), FormatWebResults(web))
}

// SynthesizerConfig 合成配置
type SynthesizerConfig struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultSynthesizerConfig 返回默认配置
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		Timeout:     60 * time.Second,
	}
}

// Synthesis 合成结果
type Synthesis struct {
	Answer       string
	PromptTokens int
}

// SynthesizerOption 可选项
type SynthesizerOption func(*Synthesizer)

// WithTokenCounter 使用本地分词器统计提示词 token
func WithTokenCounter(counter tokenizer.Counter) SynthesizerOption {
	return func(s *Synthesizer) { s.counter = counter }
}

// Synthesizer 将检索结果交给 LLM 合成带引用的答案
type Synthesizer struct {
	provider llm.Provider
	config   SynthesizerConfig
	counter  tokenizer.Counter
	logger   *zap.Logger
}

// NewSynthesizer 创建合成器
func NewSynthesizer(provider llm.Provider, config SynthesizerConfig, logger *zap.Logger, opts ...SynthesizerOption) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Synthesizer{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "synthesizer")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize 返回答案文本；失败时返回描述错误的文本
func (s *Synthesizer) Synthesize(ctx context.Context, query string, kb []KBPassage, web []WebPassage) string {
	return s.SynthesizeOutcome(ctx, query, kb, web).Value.Answer
}

// SynthesizeOutcome 与 Synthesize 相同，但保留失败原因与 token 统计
func (s *Synthesizer) SynthesizeOutcome(ctx context.Context, query string, kb []KBPassage, web []WebPassage) Outcome[Synthesis] {
	prompt := BuildSynthesisPrompt(query, kb, web)
	promptTokens := s.countTokens(prompt)

	answer, usage, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("answer synthesis failed",
			zap.String("query", truncate(query, 80)),
			zap.Error(err))
		return Degraded(Synthesis{
			Answer:       fmt.Sprintf("Error synthesizing answer: %v", err),
			PromptTokens: promptTokens,
		}, err)
	}

	if promptTokens == 0 {
		promptTokens = usage.PromptTokens
	}
	s.logger.Debug("answer synthesized",
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens))
	return Succeeded(Synthesis{Answer: answer, PromptTokens: promptTokens})
}

func (s *Synthesizer) countTokens(prompt string) int {
	if s.counter == nil {
		return 0
	}
	n, err := s.counter.CountTokens(prompt)
	if err != nil {
		s.logger.Debug("token counting failed", zap.Error(err))
		return 0
	}
	return n
}

func (s *Synthesizer) complete(ctx context.Context, prompt string) (string, llm.ChatUsage, error) {
	if s.provider == nil {
		return "", llm.ChatUsage{}, errors.New("synthesis provider not configured")
	}
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.provider.Completion(ctx, &llm.ChatRequest{
		Model:       s.config.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return "", llm.ChatUsage{}, err
	}
	content, err := resp.FirstContent()
	if err != nil {
		return "", resp.Usage, err
	}
	return content, resp.Usage, nil
}
