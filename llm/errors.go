package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MapHTTPError 将上游 HTTP 状态映射为 *Error
func MapHTTPError(status int, msg string, provider string) *Error {
	code := ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = ErrUnauthorized
	case http.StatusForbidden:
		code = ErrForbidden
	case http.StatusTooManyRequests:
		code = ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		// 检查配额/信用关键字
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") || strings.Contains(msgLower, "credit") {
			code = ErrQuotaExceeded
		} else {
			code = ErrInvalidRequest
		}
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		code = ErrUpstreamTimeout
		retryable = true
	case http.StatusServiceUnavailable:
		code = ErrProviderUnavailable
	}

	return &Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

// MapTransportError 将网络层错误映射为 *Error
func MapTransportError(err error, provider string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code: ErrUpstreamTimeout, Message: err.Error(),
			HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: provider,
		}
	}
	return &Error{
		Code: ErrUpstreamError, Message: err.Error(),
		HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: provider,
	}
}

// ReadErrorMessage 读取上游错误响应体，优先解析 {"error":{"message":...}}
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Detail any `json:"detail"`
	}

	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			if errResp.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
			}
			return errResp.Error.Message
		}
		if errResp.Detail != nil {
			return fmt.Sprint(errResp.Detail)
		}
	}

	return strings.TrimSpace(string(data))
}
