package handlers

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/nexus/rag"
	"github.com/BaSui01/nexus/types"
)

// MaxQueryRunes 单次查询的最大字符数
const MaxQueryRunes = 4000

// QueryRunner 执行一次完整的检索增强问答，由 rag.Pipeline 实现
type QueryRunner interface {
	Run(ctx context.Context, query string, preference rag.Preference) *rag.PipelineResult
}

// QueryRequest 查询请求体
type QueryRequest struct {
	Query string `json:"query"`
	// Preference: auto（默认）、hybrid、kb_only、web_only
	Preference string `json:"preference,omitempty"`
}

// validate 校验查询并解析偏好。返回的查询保持用户输入原样，
// 只有缓存键推导才做规范化。
func (r QueryRequest) validate() (string, rag.Preference, *types.Error) {
	trimmed := strings.TrimSpace(r.Query)
	if trimmed == "" {
		return "", rag.Preference{}, types.NewInvalidRequestError("query is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxQueryRunes {
		return "", rag.Preference{}, types.NewInvalidRequestError("query is too long")
	}
	return r.Query, rag.ParsePreference(r.Preference), nil
}

// =============================================================================
// 🔎 查询 Handler
// =============================================================================

// QueryHandler 处理 POST /api/v1/query
type QueryHandler struct {
	runner QueryRunner
	logger *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(runner QueryRunner, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		runner: runner,
		logger: logger.With(zap.String("handler", "query")),
	}
}

// HandleQuery 运行管线并返回 PipelineResult。
// 管线内部的降级不影响状态码，只有请求本身非法时返回 4xx。
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	query, preference, apiErr := req.validate()
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	result := h.runner.Run(r.Context(), query, preference)

	h.logger.Info("query answered",
		zap.String("preference", preference.String()),
		zap.String("strategy", result.SearchStrategyUsed.String()),
		zap.Int("sources", len(result.Sources)),
		zap.Int64("latency_ms", result.Metadata.LatencyMS),
	)
	WriteSuccess(w, result)
}
