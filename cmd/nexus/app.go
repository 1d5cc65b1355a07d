package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/nexus/api/handlers"
	"github.com/BaSui01/nexus/config"
	"github.com/BaSui01/nexus/internal/cache"
	"github.com/BaSui01/nexus/internal/database"
	"github.com/BaSui01/nexus/internal/metrics"
	"github.com/BaSui01/nexus/internal/migration"
	"github.com/BaSui01/nexus/internal/telemetry"
	"github.com/BaSui01/nexus/llm/embedding"
	"github.com/BaSui01/nexus/llm/providers/openai"
	"github.com/BaSui01/nexus/llm/tokenizer"
	"github.com/BaSui01/nexus/rag"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// App 持有一次进程生命周期内的全部组件
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Pipeline  *rag.Pipeline
	Collector *metrics.Collector
	Registry  *prometheus.Registry
	Telemetry *telemetry.Providers

	cache  cache.Store
	pool   *database.PoolManager
	qdrant *rag.QdrantStore

	closers []func() error
}

type appOptions struct {
	counter tokenizer.Counter
	version string
}

// AppOption 装配选项
type AppOption func(*appOptions)

// withTokenCounter 替换合成提示词的计数器
func withTokenCounter(c tokenizer.Counter) AppOption {
	return func(o *appOptions) { o.counter = c }
}

// withVersion 设置上报给遥测的版本号
func withVersion(v string) AppOption {
	return func(o *appOptions) { o.version = v }
}

// NewApp 按配置装配管线。凭证缺失时返回 types.ErrConfiguration 错误，
// 其余依赖（缓存、数据库、向量库）在运行期失败时由管线降级处理。
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...AppOption) (_ *App, err error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	o := appOptions{version: Version}
	for _, opt := range opts {
		opt(&o)
	}
	if o.counter == nil {
		o.counter = tokenizer.NewTiktokenTokenizer(cfg.LLM.Model)
	}

	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	// 遥测
	app.Telemetry, err = telemetry.Init(cfg.Telemetry, o.version, logger)
	if err != nil {
		logger.Warn("telemetry unavailable, continuing without export", zap.Error(err))
		app.Telemetry = &telemetry.Providers{}
	}
	app.closers = append(app.closers, func() error { return app.Telemetry.Shutdown(context.Background()) })

	// 指标：独立 registry，便于同进程多实例
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Collector = metrics.NewCollector("nexus", app.Registry, logger)

	observer := rag.Observer(app.Collector)
	if meterObs, merr := telemetry.NewMeterObserver(app.Telemetry.Meter()); merr == nil {
		observer = rag.Observers(app.Collector, meterObs)
	} else {
		logger.Warn("otel meter observer disabled", zap.Error(merr))
	}

	// 搜索缓存
	app.cache, err = app.openCache(ctx)
	if err != nil {
		return nil, err
	}

	// LLM
	provider, err := openai.New(openai.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.Model,
		Timeout:      cfg.LLM.Timeout,
	}, logger, openai.WithRecorder(app.Collector))
	if err != nil {
		return nil, err
	}

	// 知识库：embedding + Qdrant
	embedder, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, err
	}
	app.qdrant = rag.NewQdrantStore(rag.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
	}, logger)
	var similarity rag.SimilaritySearcher = rag.NewVectorSearcher(embedder, app.qdrant)
	if cfg.Breaker.Enabled {
		similarity = guardedSimilaritySearcher{breaker: app.newBreaker("kb"), next: similarity}
	}
	kb := rag.NewKnowledgeBaseRetriever(similarity, rag.KnowledgeBaseConfig{
		DefaultTopK: cfg.Retrieval.KBTopK,
		Timeout:     cfg.Retrieval.KBTimeout,
	}, logger)

	// Web 检索
	tavily, err := rag.NewTavilySearcher(rag.TavilyConfig{
		APIKey:      cfg.Search.APIKey,
		BaseURL:     cfg.Search.BaseURL,
		SearchDepth: cfg.Search.SearchDepth,
		Timeout:     cfg.Search.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	var searcher rag.WebSearcher = tavily
	if cfg.Breaker.Enabled {
		searcher = guardedWebSearcher{breaker: app.newBreaker("web"), next: searcher}
	}
	web := rag.NewWebRetriever(searcher, app.cache, rag.WebRetrieverConfig{
		CacheTTL: cfg.Cache.TTL,
		Timeout:  cfg.Search.Timeout,
	}, logger)

	researcher := rag.NewResearcher(kb, web, rag.ResearchConfig{
		KBTopK:             cfg.Retrieval.KBTopK,
		FallbackWebResults: cfg.Retrieval.FallbackWebResults,
		WebOnlyResults:     cfg.Retrieval.WebOnlyResults,
		HybridKBTopK:       cfg.Retrieval.HybridKBTopK,
		HybridWebResults:   cfg.Retrieval.HybridWebResults,
	}, logger)

	classifierCfg := rag.DefaultClassifierConfig()
	classifierCfg.Model = cfg.LLM.Model
	classifierCfg.Temperature = float32(cfg.LLM.ClassifierTemperature)
	classifierCfg.Timeout = cfg.LLM.Timeout
	classifier := rag.NewClassifier(provider, classifierCfg, logger)

	synthCfg := rag.DefaultSynthesizerConfig()
	synthCfg.Model = cfg.LLM.Model
	synthCfg.Temperature = float32(cfg.LLM.SynthesisTemperature)
	synthCfg.MaxTokens = cfg.LLM.MaxTokens
	synthCfg.Timeout = cfg.LLM.Timeout
	synthesizer := rag.NewSynthesizer(provider, synthCfg, logger, rag.WithTokenCounter(o.counter))

	app.Pipeline = rag.NewPipeline(classifier, researcher, synthesizer, logger,
		rag.WithObserver(observer),
		rag.WithTracer(app.Telemetry.Tracer()),
	)

	logger.Info("pipeline assembled",
		zap.String("model", cfg.LLM.Model),
		zap.String("cache_backend", app.cache.Name()),
		zap.String("qdrant_collection", cfg.Qdrant.Collection),
	)
	return app, nil
}

// openCache 按 cache.backend 打开缓存存储
func (a *App) openCache(ctx context.Context) (cache.Store, error) {
	cfg := a.cfg
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil

	case "redis":
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			KeyPrefix:    cfg.Cache.KeyPrefix,
			Retention:    cfg.Cache.Retention,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	case "mongo":
		store, err := cache.NewMongoStore(ctx, cache.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Cache.Collection,
			Timeout:    cfg.Mongo.Timeout,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open mongo cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	case "database", "":
		db, err := a.openDatabase()
		if err != nil {
			return nil, err
		}
		store := cache.NewSQLStore(db, a.logger)
		a.closers = append(a.closers, store.Close)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", cfg.Cache.Backend)
	}
}

// openDatabase 打开数据库、启动连接池监控，并按需执行内嵌迁移
func (a *App) openDatabase() (*gorm.DB, error) {
	db, err := database.Open(a.cfg.Database, a.logger)
	if err != nil {
		return nil, err
	}
	a.pool, err = database.NewPoolManager(db, database.PoolConfigFrom(a.cfg.Database), a.logger,
		database.WithStatsHook(a.Collector.RecordDBStats))
	if err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("database pool: %w", err)
	}
	a.closers = append(a.closers, a.pool.Close)

	if a.cfg.Cache.AutoMigrate {
		if err := a.migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (a *App) migrate(db *gorm.DB) error {
	dbType, err := migration.ParseDatabaseType(a.cfg.Database.Driver)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	m, err := migration.NewMigratorWithDB(sqlDB, dbType)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(context.Background()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, _, _ := m.Version(context.Background())
	a.logger.Info("search cache schema ready", zap.Uint("version", version))
	return nil
}

// HealthChecks 就绪检查：缓存、数据库（若打开）、向量库
func (a *App) HealthChecks() []handlers.HealthCheck {
	checks := []handlers.HealthCheck{handlers.NewPingCheck("cache", a.cache)}
	if a.pool != nil {
		checks = append(checks, handlers.NewPingCheck("database", a.pool))
	}
	checks = append(checks, handlers.NewPingCheck("qdrant", a.qdrant))
	return checks
}

// Close 逆序释放资源并汇总错误
func (a *App) Close(ctx context.Context) error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
