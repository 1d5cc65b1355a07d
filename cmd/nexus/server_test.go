package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nexus/api"
	"github.com/BaSui01/nexus/api/handlers"
	"github.com/BaSui01/nexus/llm/tokenizer"
	"github.com/BaSui01/nexus/rag"
)

func newTestHandler(t *testing.T, mutate func(*App)) (*Server, *httptest.Server) {
	t.Helper()
	upstream := newFakeUpstream(t, "hybrid")
	cfg := testConfig(t, upstream)
	cfg.Server.APIKeys = []string{"secret-key"}
	app := newTestApp(t, cfg)
	if mutate != nil {
		mutate(app)
	}

	srv := NewServer(app, zap.NewNop())
	t.Cleanup(srv.limiterCancel)
	handler, err := srv.Handler()
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func postQuery(t *testing.T, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+api.PathQuery, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerHandler_Query(t *testing.T) {
	_, ts := newTestHandler(t, nil)

	resp := postQuery(t, ts.URL, "secret-key", `{"query":"What is RAG?","preference":"auto"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	var envelope struct {
		Success bool               `json:"success"`
		Data    rag.PipelineResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, rag.StrategyHybrid, envelope.Data.SearchStrategyUsed)
	assert.Len(t, envelope.Data.Sources, 2)
}

func TestServerHandler_QueryRequiresAPIKey(t *testing.T) {
	_, ts := newTestHandler(t, nil)

	resp := postQuery(t, ts.URL, "", `{"query":"What is RAG?"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerHandler_QueryValidation(t *testing.T) {
	_, ts := newTestHandler(t, nil)

	resp := postQuery(t, ts.URL, "secret-key", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope handlers.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_REQUEST", envelope.Error.Code)
}

func TestServerHandler_PublicEndpoints(t *testing.T) {
	_, ts := newTestHandler(t, nil)

	for _, path := range []string{api.PathHealth, api.PathHealthz, api.PathReady, api.PathReadyz, api.PathVersion} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestServerHandler_ReadyReportsFailingDependency(t *testing.T) {
	_, ts := newTestHandler(t, func(app *App) {
		// 指向已关闭的地址
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		app.qdrant = rag.NewQdrantStore(rag.QdrantConfig{BaseURL: dead.URL, Collection: "kb", Timeout: time.Second}, zap.NewNop())
	})

	resp, err := http.Get(ts.URL + api.PathReady)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerMetricsHandler(t *testing.T) {
	srv, ts := newTestHandler(t, nil)

	postQuery(t, ts.URL, "secret-key", `{"query":"What is RAG?"}`)

	metrics := httptest.NewServer(srv.MetricsHandler())
	defer metrics.Close()

	resp, err := http.Get(metrics.URL + api.PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nexus_")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_StartRunShutdown(t *testing.T) {
	upstream := newFakeUpstream(t, "hybrid")
	cfg := testConfig(t, upstream)
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second

	app, err := NewApp(context.Background(), cfg, zap.NewNop(), withTokenCounter(tokenizer.NewEstimatorTokenizer()))
	require.NoError(t, err)

	srv := NewServer(app, zap.NewNop())
	require.NoError(t, srv.Start())

	_, port, err := net.SplitHostPort(srv.httpManager.ListenAddr())
	require.NoError(t, err)

	resp, err := http.Get("http://127.0.0.1:" + port + api.PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.httpManager.IsRunning())
	http.DefaultClient.CloseIdleConnections()
}
