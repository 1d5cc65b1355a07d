package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nexus/internal/tlsutil"
	"github.com/BaSui01/nexus/llm"
	"github.com/BaSui01/nexus/types"
)

// TavilyConfig Tavily 搜索配置
type TavilyConfig struct {
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	SearchDepth string        `json:"search_depth"`
	Timeout     time.Duration `json:"timeout"`
}

// TavilySearcher 调用 Tavily /search 接口
type TavilySearcher struct {
	cfg    TavilyConfig
	client *http.Client
	logger *zap.Logger
}

// NewTavilySearcher 创建 Tavily 搜索器；缺少 API Key 时返回配置错误
func NewTavilySearcher(cfg TavilyConfig, logger *zap.Logger) (*TavilySearcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, types.NewConfigurationError("TAVILY_API_KEY", "tavily api key is required for web search")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TavilySearcher{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "tavily")),
	}, nil
}

func (t *TavilySearcher) Name() string { return "tavily" }

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search 执行一次搜索
func (t *TavilySearcher) Search(ctx context.Context, query string, maxResults int) ([]WebPassage, error) {
	payload, err := json.Marshal(tavilyRequest{
		Query:       query,
		SearchDepth: t.cfg.SearchDepth,
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, llm.MapTransportError(err, t.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, llm.MapHTTPError(resp.StatusCode, llm.ReadErrorMessage(resp.Body), t.Name())
	}

	var body tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	out := make([]WebPassage, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, WebPassage{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	t.logger.Debug("tavily search completed", zap.Int("max_results", maxResults), zap.Int("results", len(out)))
	return out, nil
}
