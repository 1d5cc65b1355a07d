// =============================================================================
// Nexus OpenAI Chat Completions Provider
// =============================================================================
// 用于查询分类与答案合成的对话模型客户端。
// =============================================================================

package openai

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

const (
	providerName         = "openai"
	defaultBaseURL       = "https://api.openai.com"
	defaultModel         = "gpt-4o-mini"
	defaultEndpointPath  = "/v1/chat/completions"
	defaultModelsPath    = "/v1/models"
	defaultClientTimeout = 60 * time.Second
)

// RequestRecorder 接收每次请求的结果，internal/metrics.Collector 实现了该接口
type RequestRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64)
}

// Config holds the configuration for the OpenAI provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Organization string
	Timeout      time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string
	// ModelsEndpoint defaults to "/v1/models".
	ModelsEndpoint string
}

// Provider implements llm.Provider against the OpenAI chat completions API.
type Provider struct {
	cfg      Config
	client   *http.Client
	logger   *zap.Logger
	recorder RequestRecorder
}

// Option 配置 Provider 的可选项
type Option func(*Provider)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithRecorder 设置请求指标记录器
func WithRecorder(r RequestRecorder) Option {
	return func(p *Provider) { p.recorder = r }
}

// New creates a new OpenAI provider. An empty API key is a configuration error.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, types.NewConfigurationError("OPENAI_API_KEY", "api key is required for the openai provider")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultClientTimeout
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultEndpointPath
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = defaultModelsPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "openai_provider")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

// DefaultModel 返回未指定 model 时使用的模型
func (p *Provider) DefaultModel() string { return p.cfg.DefaultModel }

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

// =============================================================================
// 🌐 Wire types
// =============================================================================

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	User           string          `json:"user,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	body := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		User:        req.TraceID,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.ResponseFormat != "" {
		body.ResponseFormat = &responseFormat{Type: string(req.ResponseFormat)}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.doCompletion(ctx, body)
	p.record(model, start, resp, err)
	if err != nil {
		p.logger.Debug("chat completion failed", zap.String("model", model), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (p *Provider) doCompletion(ctx context.Context, body chatRequest) (*llm.ChatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := llm.ReadErrorMessage(resp.Body)
		return nil, llm.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	result := &llm.ChatResponse{
		ID:       oaResp.ID,
		Provider: p.Name(),
		Model:    oaResp.Model,
		Choices:  make([]llm.ChatChoice, 0, len(oaResp.Choices)),
		Usage: llm.ChatUsage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		},
	}
	for _, c := range oaResp.Choices {
		result.Choices = append(result.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      llm.Message{Role: llm.Role(c.Message.Role), Content: c.Message.Content},
		})
	}
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}

func (p *Provider) record(model string, start time.Time, resp *llm.ChatResponse, err error) {
	if p.recorder == nil {
		return
	}
	status := "success"
	var promptTokens, completionTokens int
	if err != nil {
		status = "error"
	} else {
		promptTokens = resp.Usage.PromptTokens
		completionTokens = resp.Usage.CompletionTokens
	}
	p.recorder.RecordLLMRequest(p.Name(), model, status, time.Since(start), promptTokens, completionTokens, 0)
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := llm.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("openai health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}

	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}
