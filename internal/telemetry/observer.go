package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/nexus/rag"
)

// MeterObserver 以 OTel metric 记录管线事件，与 Prometheus Collector 并行使用
type MeterObserver struct {
	queries     metric.Int64Counter
	queryTime   metric.Float64Histogram
	stages      metric.Int64Counter
	stageTime   metric.Float64Histogram
	cacheLookup metric.Int64Counter
	tokens      metric.Int64Histogram
}

// NewMeterObserver 在 meter 上创建管线指标
func NewMeterObserver(meter metric.Meter) (*MeterObserver, error) {
	o := &MeterObserver{}
	var err error

	if o.queries, err = meter.Int64Counter("nexus.queries",
		metric.WithDescription("Processed queries")); err != nil {
		return nil, err
	}
	if o.queryTime, err = meter.Float64Histogram("nexus.query.duration",
		metric.WithDescription("End-to-end query latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.stages, err = meter.Int64Counter("nexus.stage.calls",
		metric.WithDescription("Pipeline stage invocations")); err != nil {
		return nil, err
	}
	if o.stageTime, err = meter.Float64Histogram("nexus.stage.duration",
		metric.WithDescription("Pipeline stage latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.cacheLookup, err = meter.Int64Counter("nexus.web_cache.lookups",
		metric.WithDescription("Web search cache lookups")); err != nil {
		return nil, err
	}
	if o.tokens, err = meter.Int64Histogram("nexus.synthesis.prompt_tokens",
		metric.WithDescription("Synthesis prompt size"), metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *MeterObserver) stage(name string, degraded bool, d time.Duration, extra ...attribute.KeyValue) {
	attrs := metric.WithAttributes(append([]attribute.KeyValue{
		attribute.String("nexus.stage", name),
		attribute.Bool("nexus.degraded", degraded),
	}, extra...)...)
	ctx := context.Background()
	o.stages.Add(ctx, 1, attrs)
	o.stageTime.Record(ctx, d.Seconds(), attrs)
}

func (o *MeterObserver) ObserveClassification(strategy rag.Strategy, degraded bool, d time.Duration) {
	o.stage("classify", degraded, d, attribute.String("nexus.strategy", strategy.String()))
}

func (o *MeterObserver) ObserveRetrieval(source rag.SourceType, _ int, degraded bool, d time.Duration) {
	o.stage(string(source), degraded, d)
}

func (o *MeterObserver) ObserveWebCache(hit bool) {
	o.cacheLookup.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("nexus.cache_hit", hit)))
}

func (o *MeterObserver) ObserveSynthesis(promptTokens int, degraded bool, d time.Duration) {
	o.stage("synthesize", degraded, d)
	if promptTokens > 0 {
		o.tokens.Record(context.Background(), int64(promptTokens))
	}
}

func (o *MeterObserver) ObservePipeline(strategy rag.Strategy, manual bool, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("nexus.strategy", strategy.String()),
		attribute.Bool("nexus.manual", manual),
	)
	o.queries.Add(context.Background(), 1, attrs)
	o.queryTime.Record(context.Background(), d.Seconds(), attrs)
}

var _ rag.Observer = (*MeterObserver)(nil)
