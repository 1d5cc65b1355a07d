package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/nexus/api"
	"github.com/BaSui01/nexus/api/handlers"
	"github.com/BaSui01/nexus/internal/server"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组合 API 服务与指标服务
type Server struct {
	app    *App
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	// rate limiter 清理 goroutine 的生命周期
	limiterCtx    context.Context
	limiterCancel context.CancelFunc
}

// NewServer 创建服务器
func NewServer(app *App, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		app:           app,
		logger:        logger,
		limiterCtx:    ctx,
		limiterCancel: cancel,
	}
}

// Handler 构建 API 路由与中间件链
func (s *Server) Handler() (http.Handler, error) {
	cfg := s.app.cfg.Server

	health := handlers.NewHealthHandler(s.logger)
	for _, check := range s.app.HealthChecks() {
		health.RegisterCheck(check)
	}
	query := handlers.NewQueryHandler(s.app.Pipeline, s.logger)
	stream := handlers.NewQueryStreamHandler(s.app.Pipeline, cfg.CORSAllowedOrigins, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc(api.PathHealth, health.HandleHealth)
	mux.HandleFunc(api.PathHealthz, health.HandleHealthz)
	mux.HandleFunc(api.PathReady, health.HandleReady)
	mux.HandleFunc(api.PathReadyz, health.HandleReady)
	mux.HandleFunc(api.PathVersion, health.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc(api.PathQuery, query.HandleQuery)
	mux.Handle(api.PathQueryStream, stream)

	var authenticators []Authenticator
	if len(cfg.APIKeys) > 0 {
		authenticators = append(authenticators, APIKeyAuthenticator(cfg.APIKeys, cfg.AllowQueryAPIKey))
	}
	if cfg.JWT.Enabled() {
		jwtAuth, err := JWTAuthenticator(cfg.JWT)
		if err != nil {
			return nil, fmt.Errorf("jwt auth: %w", err)
		}
		authenticators = append(authenticators, jwtAuth)
	}
	if len(authenticators) == 0 {
		s.logger.Warn("no API keys or JWT configured, API is unauthenticated")
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.app.Collector),
		OTelTracing(s.app.Telemetry.Tracer()),
		CORS(cfg.CORSAllowedOrigins),
		Auth(api.PublicPaths, s.logger, authenticators...),
		RateLimiter(s.limiterCtx, float64(cfg.RateLimitRPS), cfg.RateLimitBurst, s.logger),
	), nil
}

// MetricsHandler Prometheus 抓取端点
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(api.PathMetrics, promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{
		Registry:          s.app.Registry,
		EnableOpenMetrics: true,
	}))
	return mux
}

// Start 非阻塞启动 API 与指标服务
func (s *Server) Start() error {
	cfg := s.app.cfg.Server

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	s.httpManager = server.NewManager(handler, server.ConfigFromServer("api", cfg, cfg.HTTPPort), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	if cfg.MetricsPort > 0 {
		s.metricsManager = server.NewManager(s.MetricsHandler(), server.ConfigFromServer("metrics", cfg, cfg.MetricsPort), s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("metrics_port", cfg.MetricsPort),
	)
	return nil
}

// Run 阻塞直到 ctx 结束或任一服务异常退出，然后关闭全部资源
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range s.managers() {
		g.Go(func() error { return m.Run(gctx) })
	}
	runErr := g.Wait()

	if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return multierror.Append(runErr, err).ErrorOrNil()
	}
	return runErr
}

func (s *Server) managers() []*server.Manager {
	var ms []*server.Manager
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil {
			ms = append(ms, m)
		}
	}
	return ms
}

// Shutdown 关闭服务与组件，汇总所有错误
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")
	s.limiterCancel()

	var result *multierror.Error
	for _, m := range s.managers() {
		if err := m.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.app.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		s.logger.Error("shutdown completed with errors", zap.Error(err))
		return err
	}
	s.logger.Info("graceful shutdown completed")
	return nil
}
