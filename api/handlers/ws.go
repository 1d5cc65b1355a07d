package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/nexus/rag"
	"github.com/BaSui01/nexus/types"
)

// StreamFrame websocket 出站帧
type StreamFrame struct {
	Type   string              `json:"type"` // result / error
	ID     string              `json:"id,omitempty"`
	Result *rag.PipelineResult `json:"result,omitempty"`
	Error  *ErrorInfo          `json:"error,omitempty"`
}

// streamRequest websocket 入站消息
type streamRequest struct {
	ID string `json:"id,omitempty"`
	QueryRequest
}

// QueryStreamHandler 处理 /api/v1/query/ws。
// 每条入站 {query, preference} 消息按顺序回复一帧结果，非法消息回复 error 帧且不断开连接。
type QueryStreamHandler struct {
	runner         QueryRunner
	originPatterns []string
	logger         *zap.Logger
}

// NewQueryStreamHandler 创建 websocket 查询处理器，originPatterns 为空时只允许同源
func NewQueryStreamHandler(runner QueryRunner, originPatterns []string, logger *zap.Logger) *QueryStreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryStreamHandler{
		runner:         runner,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "query_stream")),
	}
}

// ServeHTTP 升级连接并循环处理查询，直到客户端关闭
func (h *QueryStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(MaxBodyBytes)

	ctx := r.Context()
	for {
		if err := h.serveOne(ctx, conn); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			h.logger.Warn("websocket session ended", zap.Error(err))
			return
		}
	}
}

// serveOne 读取一条消息并回复；只有连接级错误才返回 error
func (h *QueryStreamHandler) serveOne(ctx context.Context, conn *websocket.Conn) error {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if typ != websocket.MessageText {
		return h.writeError(ctx, conn, "", types.NewInvalidRequestError("expected text frame"))
	}

	var req streamRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return h.writeError(ctx, conn, "", types.NewInvalidRequestError("invalid JSON message").WithCause(err))
	}

	query, preference, apiErr := req.validate()
	if apiErr != nil {
		return h.writeError(ctx, conn, req.ID, apiErr)
	}

	result := h.runner.Run(ctx, query, preference)
	return wsjson.Write(ctx, conn, StreamFrame{Type: "result", ID: req.ID, Result: result})
}

func (h *QueryStreamHandler) writeError(ctx context.Context, conn *websocket.Conn, id string, err *types.Error) error {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}
	return wsjson.Write(ctx, conn, StreamFrame{
		Type: "error",
		ID:   id,
		Error: &ErrorInfo{
			Code:       string(err.Code),
			Message:    err.Message,
			Retryable:  err.Retryable,
			HTTPStatus: status,
		},
	})
}
