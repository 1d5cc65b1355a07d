package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/nexus/internal/circuitbreaker"
	"github.com/BaSui01/nexus/rag"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 管线指标
	queriesTotal         *prometheus.CounterVec
	queryDuration        *prometheus.HistogramVec
	classificationsTotal *prometheus.CounterVec
	stageDuration        *prometheus.HistogramVec
	retrievalsTotal      *prometheus.CounterVec
	retrievalResults     *prometheus.HistogramVec
	synthesesTotal       *prometheus.CounterVec
	promptTokens         prometheus.Histogram

	// 缓存指标
	webCacheLookups *prometheus.CounterVec

	// 熔断指标
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	// 数据库指标
	dbConnections *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器；reg 为 nil 时注册到默认 Registry
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 管线指标
	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of processed queries",
		},
		[]string{"strategy", "mode"}, // mode: auto, manual
	)

	c.queryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	c.classificationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Total number of query classifications",
		},
		[]string{"strategy", "status"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"}, // classify, kb, web, synthesize
	)

	c.retrievalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrieval calls",
		},
		[]string{"source", "status"},
	)

	c.retrievalResults = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of passages returned per retrieval call",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		},
		[]string{"source"},
	)

	c.synthesesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syntheses_total",
			Help:      "Total number of answer syntheses",
		},
		[]string{"status"},
	)

	c.promptTokens = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_prompt_tokens",
			Help:      "Prompt size of answer synthesis in tokens",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 8),
		},
	)

	// 缓存指标
	c.webCacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "web_cache_lookups_total",
			Help:      "Total number of web search cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	// 熔断指标
	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)

	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "to"},
	)

	// 数据库指标
	c.dbConnections = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"}, // open, in_use, idle
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求；cost 未知时为 0，不单独成指标
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	if cost > 0 {
		c.logger.Debug("llm request cost", zap.String("model", model), zap.Float64("usd", cost))
	}
}

// =============================================================================
// 🔎 管线指标（rag.Observer）
// =============================================================================

// ObserveClassification 记录一次分类
func (c *Collector) ObserveClassification(strategy rag.Strategy, degraded bool, d time.Duration) {
	c.classificationsTotal.WithLabelValues(strategy.String(), outcomeStatus(degraded)).Inc()
	c.stageDuration.WithLabelValues("classify").Observe(d.Seconds())
}

// ObserveRetrieval 记录一次检索调用
func (c *Collector) ObserveRetrieval(source rag.SourceType, results int, degraded bool, d time.Duration) {
	c.retrievalsTotal.WithLabelValues(string(source), outcomeStatus(degraded)).Inc()
	c.retrievalResults.WithLabelValues(string(source)).Observe(float64(results))
	c.stageDuration.WithLabelValues(string(source)).Observe(d.Seconds())
}

// ObserveWebCache 记录 Web 搜索缓存命中情况
func (c *Collector) ObserveWebCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.webCacheLookups.WithLabelValues(result).Inc()
}

// ObserveSynthesis 记录一次答案合成
func (c *Collector) ObserveSynthesis(promptTokens int, degraded bool, d time.Duration) {
	c.synthesesTotal.WithLabelValues(outcomeStatus(degraded)).Inc()
	c.stageDuration.WithLabelValues("synthesize").Observe(d.Seconds())
	if promptTokens > 0 {
		c.promptTokens.Observe(float64(promptTokens))
	}
}

// ObservePipeline 记录一次完整查询
func (c *Collector) ObservePipeline(strategy rag.Strategy, manual bool, d time.Duration) {
	mode := "auto"
	if manual {
		mode = "manual"
	}
	c.queriesTotal.WithLabelValues(strategy.String(), mode).Inc()
	c.queryDuration.WithLabelValues(strategy.String()).Observe(d.Seconds())
}

// =============================================================================
// 🔌 熔断指标记录
// =============================================================================

// RecordBreakerTransition 记录熔断状态变更，可直接作为 circuitbreaker.Config.OnStateChange
func (c *Collector) RecordBreakerTransition(name string, from, to circuitbreaker.State) {
	c.breakerState.WithLabelValues(name).Set(float64(to))
	c.breakerTransitions.WithLabelValues(name, to.String()).Inc()
	c.logger.Debug("circuit breaker transition",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBStats 记录连接池状态，可直接作为 database.PoolManager 的统计回调
func (c *Collector) RecordDBStats(stats sql.DBStats) {
	c.dbConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	c.dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	c.dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func outcomeStatus(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "ok"
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var _ rag.Observer = (*Collector)(nil)
