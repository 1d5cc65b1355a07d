package rag

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/nexus/rag"

// previewRunes 来源预览的最大字符数
const previewRunes = 100

// QueryClassifier 分类边界
type QueryClassifier interface {
	ClassifyOutcome(ctx context.Context, query string) Outcome[ClassificationResult]
}

// ResearchRunner 检索编排边界
type ResearchRunner interface {
	Research(ctx context.Context, query string, strategy Strategy) ResearchResult
}

// AnswerSynthesizer 答案合成边界
type AnswerSynthesizer interface {
	SynthesizeOutcome(ctx context.Context, query string, kb []KBPassage, web []WebPassage) Outcome[Synthesis]
}

// Source 返回给调用方的引用来源
type Source struct {
	Type    SourceType `json:"type"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
	URL     string     `json:"url,omitempty"`
	Score   float64    `json:"score,omitempty"`
}

// PipelineMetadata 运行统计
type PipelineMetadata struct {
	KBSources  int   `json:"kb_sources"`
	WebSources int   `json:"web_sources"`
	LatencyMS  int64 `json:"latency_ms"`
}

// PipelineResult 一次查询的完整响应
type PipelineResult struct {
	Answer             string           `json:"answer"`
	Sources            []Source         `json:"sources"`
	SearchStrategyUsed Strategy         `json:"search_strategy_used"`
	Metadata           PipelineMetadata `json:"metadata"`
}

// PipelineOption 可选项
type PipelineOption func(*Pipeline)

// WithObserver 设置事件回调
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithClock 注入时钟，用于延迟统计
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline 顺序执行 分类 → 检索 → 合成
type Pipeline struct {
	classifier  QueryClassifier
	researcher  ResearchRunner
	synthesizer AnswerSynthesizer
	observer    Observer
	tracer      trace.Tracer
	now         func() time.Time
	logger      *zap.Logger
}

// NewPipeline 创建管线
func NewPipeline(classifier QueryClassifier, researcher ResearchRunner, synthesizer AnswerSynthesizer, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		classifier:  classifier,
		researcher:  researcher,
		synthesizer: synthesizer,
		observer:    NopObserver{},
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		logger:      logger.With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Run 处理一次查询。
// auto 偏好调用分类器决定策略；手动偏好直接使用，不调用分类器。
func (p *Pipeline) Run(ctx context.Context, query string, preference Preference) *PipelineResult {
	start := p.now()

	ctx, span := p.tracer.Start(ctx, "nexus.pipeline.run", trace.WithAttributes(
		attribute.String("nexus.preference", preference.String()),
		attribute.Int("nexus.query_length", len([]rune(query))),
	))
	defer span.End()

	strategy := p.resolveStrategy(ctx, query, preference)
	research := p.research(ctx, query, strategy)
	answer := p.synthesize(ctx, query, research)

	latency := p.now().Sub(start)
	result := &PipelineResult{
		Answer:             answer,
		Sources:            BuildSources(research.KBResults, research.WebResults),
		SearchStrategyUsed: strategy,
		Metadata: PipelineMetadata{
			KBSources:  len(research.KBResults),
			WebSources: len(research.WebResults),
			LatencyMS:  latency.Milliseconds(),
		},
	}

	span.SetAttributes(
		attribute.String("nexus.strategy", strategy.String()),
		attribute.Int("nexus.kb_sources", result.Metadata.KBSources),
		attribute.Int("nexus.web_sources", result.Metadata.WebSources),
	)
	p.observer.ObservePipeline(strategy, !preference.IsAuto(), latency)

	p.logger.Info("query processed",
		zap.Stringer("strategy", strategy),
		zap.Bool("manual", !preference.IsAuto()),
		zap.Int("kb_sources", result.Metadata.KBSources),
		zap.Int("web_sources", result.Metadata.WebSources),
		zap.Int64("latency_ms", result.Metadata.LatencyMS))
	return result
}

func (p *Pipeline) resolveStrategy(ctx context.Context, query string, preference Preference) Strategy {
	if !preference.IsAuto() {
		p.logger.Debug("using user preference", zap.Stringer("strategy", preference.Strategy()))
		return preference.Strategy()
	}

	ctx, span := p.tracer.Start(ctx, "nexus.pipeline.classify")
	defer span.End()

	start := time.Now()
	out := p.classifier.ClassifyOutcome(ctx, query)
	strategy := out.Value.SearchStrategy

	span.SetAttributes(
		attribute.String("nexus.query_type", string(out.Value.Type)),
		attribute.Bool("nexus.has_temporal", out.Value.HasTemporal),
		attribute.String("nexus.strategy", strategy.String()),
	)
	markDegraded(span, out.Err)
	p.observer.ObserveClassification(strategy, out.Err != nil, time.Since(start))

	p.logger.Debug("detected intent",
		zap.String("type", string(out.Value.Type)),
		zap.Stringer("strategy", strategy))
	return strategy
}

func (p *Pipeline) research(ctx context.Context, query string, strategy Strategy) ResearchResult {
	ctx, span := p.tracer.Start(ctx, "nexus.pipeline.research",
		trace.WithAttributes(attribute.String("nexus.strategy", strategy.String())))
	defer span.End()

	result := p.researcher.Research(ctx, query, strategy)

	for _, call := range result.Calls {
		p.observer.ObserveRetrieval(call.Source, call.Results, call.Err != nil, call.Duration)
		if call.Source == SourceWeb && call.Err == nil {
			p.observer.ObserveWebCache(call.FromCache)
		}
		if call.Err != nil {
			span.RecordError(call.Err, trace.WithAttributes(attribute.String("nexus.source", string(call.Source))))
		}
	}
	span.SetAttributes(
		attribute.Int("nexus.kb_results", len(result.KBResults)),
		attribute.Int("nexus.web_results", len(result.WebResults)),
		attribute.Bool("nexus.fallback", result.Fallback),
	)
	return result
}

func (p *Pipeline) synthesize(ctx context.Context, query string, research ResearchResult) string {
	ctx, span := p.tracer.Start(ctx, "nexus.pipeline.synthesize")
	defer span.End()

	start := time.Now()
	out := p.synthesizer.SynthesizeOutcome(ctx, query, research.KBResults, research.WebResults)

	span.SetAttributes(attribute.Int("nexus.prompt_tokens", out.Value.PromptTokens))
	markDegraded(span, out.Err)
	p.observer.ObserveSynthesis(out.Value.PromptTokens, out.Err != nil, time.Since(start))
	return out.Value.Answer
}

func markDegraded(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// =============================================================================
// 📚 来源列表
// =============================================================================

// BuildSources 先知识库后 Web，各自保持检索顺序
func BuildSources(kb []KBPassage, web []WebPassage) []Source {
	sources := make([]Source, 0, len(kb)+len(web))
	for _, r := range kb {
		title := r.Source
		if title == "" {
			title = "Unknown Document"
		}
		sources = append(sources, Source{
			Type:    SourceKB,
			Title:   title,
			Content: Preview(r.Content),
			Score:   r.Score,
		})
	}
	for _, r := range web {
		title := r.Title
		if title == "" {
			title = "Unknown Web Source"
		}
		u := r.URL
		if u == "" {
			u = "#"
		}
		sources = append(sources, Source{
			Type:    SourceWeb,
			Title:   title,
			Content: Preview(r.Content),
			URL:     u,
		})
	}
	return sources
}

// Preview 截取前 100 个字符并追加省略号
func Preview(content string) string {
	r := []rune(content)
	if len(r) > previewRunes {
		r = r[:previewRunes]
	}
	return string(r) + "..."
}
