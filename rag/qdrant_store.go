package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/nexus/internal/tlsutil"
	"github.com/BaSui01/nexus/llm"
)

// QdrantConfig Qdrant 知识库配置。
//
// 片段由离线导入流程写入，payload 布局为
// {"content": "...", "metadata": {"source": "file.pdf", "chunk_index": 3}}。
type QdrantConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	BaseURL    string        `json:"base_url,omitempty"`
	APIKey     string        `json:"api_key,omitempty"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty"`

	// payload 中的 gjson 路径
	ContentPath    string `json:"content_path"`
	SourcePath     string `json:"source_path"`
	ChunkIndexPath string `json:"chunk_index_path"`
}

// QdrantStore 基于 Qdrant REST API 的只读向量索引
type QdrantStore struct {
	cfg     QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewQdrantStore 创建 Qdrant 索引
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ContentPath == "" {
		cfg.ContentPath = "content"
	}
	if cfg.SourcePath == "" {
		cfg.SourcePath = "metadata.source"
	}
	if cfg.ChunkIndexPath == "" {
		cfg.ChunkIndexPath = "metadata.chunk_index"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

func (s *QdrantStore) collectionPath(suffix string) (string, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return "", fmt.Errorf("qdrant collection is required")
	}
	return "/collections/" + url.PathEscape(s.cfg.Collection) + suffix, nil
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

// do 执行请求并返回原始响应体
func (s *QdrantStore) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, llm.MapTransportError(err, "qdrant")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := llm.ReadErrorMessage(resp.Body)
		return nil, llm.MapHTTPError(resp.StatusCode, fmt.Sprintf("qdrant %s %s: %s", method, path, msg), "qdrant")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read qdrant response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("qdrant returned invalid JSON for %s %s", method, path)
	}
	return raw, nil
}

// Search 按向量检索 topK 个片段
func (s *QdrantStore) Search(ctx context.Context, vector []float64, topK int) ([]KBPassage, error) {
	path, err := s.collectionPath("/points/search")
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []KBPassage{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	req := struct {
		Vector      []float64 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		WithVector  bool      `json:"with_vector"`
	}{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
	}

	raw, err := s.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}

	hits := gjson.GetBytes(raw, "result").Array()
	out := make([]KBPassage, 0, len(hits))
	for _, hit := range hits {
		payload := hit.Get("payload")
		out = append(out, KBPassage{
			Content:    payload.Get(s.cfg.ContentPath).String(),
			Source:     payload.Get(s.cfg.SourcePath).String(),
			ChunkIndex: int(payload.Get(s.cfg.ChunkIndexPath).Int()),
			Score:      hit.Get("score").Float(),
		})
	}

	s.logger.Debug("qdrant search completed", zap.Int("limit", topK), zap.Int("hits", len(out)))
	return out, nil
}

// Ping 检查集合是否可访问
func (s *QdrantStore) Ping(ctx context.Context) error {
	path, err := s.collectionPath("")
	if err != nil {
		return err
	}
	raw, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status := gjson.GetBytes(raw, "result.status").String(); status == "red" {
		return fmt.Errorf("qdrant collection %s status is red", s.cfg.Collection)
	}
	return nil
}
