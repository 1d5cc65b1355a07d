package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/nexus/rag"
)

// runAsk 执行单次问答并以 JSON 输出 PipelineResult
func runAsk(args []string, stdout, stderr io.Writer, opts ...AppOption) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	preference := fs.String("preference", rag.PreferenceAuto, "Search strategy preference: auto, hybrid, kb_only, web_only")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(stderr, `Usage: nexus ask [--config path] [--preference p] "<query>"`)
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return reportError(stderr, err)
	}
	// ask 的日志只写 stderr，stdout 保留给结果
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger, append([]AppOption{withVersion(Version)}, opts...)...)
	if err != nil {
		return reportError(stderr, err)
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("close components", zap.Error(err))
		}
	}()

	result := app.Pipeline.Run(ctx, query, rag.ParsePreference(*preference))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "Error: encode result: %v\n", err)
		return exitError
	}
	return exitOK
}
