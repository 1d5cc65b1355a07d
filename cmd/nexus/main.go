// =============================================================================
// Nexus 主入口
// =============================================================================
// 检索增强问答服务：HTTP API、命令行问答、数据库迁移
//
// 使用方法:
//
//	nexus serve                         # 启动服务
//	nexus serve --config config.yaml    # 指定配置文件
//	nexus ask "What is RAG?"            # 命令行问答，输出 JSON
//	nexus ask --preference web_only "AI news this week"
//	nexus migrate up                    # 运行数据库迁移
//	nexus version                       # 显示版本信息
//	nexus health                        # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/nexus/api"
	"github.com/BaSui01/nexus/config"
	"github.com/BaSui01/nexus/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 分发子命令并返回退出码
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "ask":
		return runAsk(args[1:], stdout, stderr)
	case "migrate":
		return runMigrate(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return exitOK
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Check readiness (dependencies) instead of liveness")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	path := api.PathHealth
	if *ready {
		path = api.PathReady
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + path)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return exitError
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return exitError
	}

	fmt.Fprintln(stdout, "OK")
	return exitOK
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return reportError(stderr, err)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting Nexus",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger, withVersion(Version))
	if err != nil {
		logger.Error("failed to assemble pipeline", zap.Error(err))
		return reportError(stderr, err)
	}

	srv := NewServer(app, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		_ = srv.Shutdown(context.Background())
		return exitError
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return exitError
	}
	logger.Info("Nexus stopped")
	return exitOK
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// reportError 打印错误；配置错误额外提示对应的环境变量
func reportError(stderr io.Writer, err error) int {
	if apiErr, ok := types.AsError(err); ok && apiErr.Code == types.ErrConfiguration {
		fmt.Fprintf(stderr, "Configuration error: %s\n", apiErr.Message)
		fmt.Fprintln(stderr, "Set the missing credential in the environment or the config file and retry.")
		return exitError
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Nexus %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Nexus - knowledge base + web search question answering

Usage:
  nexus <command> [options]

Commands:
  serve     Start the HTTP API and metrics servers
  ask       Answer a single query and print the result as JSON
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve' and 'ask':
  --config <path>       Path to configuration file (YAML)

Options for 'ask':
  --preference <p>      auto (default), hybrid, kb_only, web_only

Environment:
  OPENAI_API_KEY        Language model and embedding credentials
  TAVILY_API_KEY        Web search credentials

Examples:
  nexus serve --config /etc/nexus/config.yaml
  nexus ask "Explain retrieval augmented generation"
  nexus ask --preference web_only "AI news this week"
  nexus migrate up
  nexus health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "nexus"))
}
