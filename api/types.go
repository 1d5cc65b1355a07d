package api

import "github.com/BaSui01/nexus/api/handlers"

// =============================================================================
// 路由
// =============================================================================

const (
	PathHealth      = "/health"
	PathHealthz     = "/healthz"
	PathReady       = "/ready"
	PathReadyz      = "/readyz"
	PathVersion     = "/version"
	PathMetrics     = "/metrics"
	PathQuery       = "/api/v1/query"
	PathQueryStream = "/api/v1/query/ws"
)

// PublicPaths 不需要认证的路径
var PublicPaths = []string{PathHealth, PathHealthz, PathReady, PathReadyz, PathVersion, PathMetrics}

// =============================================================================
// 请求 / 响应类型
// =============================================================================

// QueryRequest POST /api/v1/query 请求体
type QueryRequest = handlers.QueryRequest

// Response 统一响应信封
type Response = handlers.Response

// StreamFrame websocket 出站帧
type StreamFrame = handlers.StreamFrame
