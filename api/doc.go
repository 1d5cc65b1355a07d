// Package api 描述 Nexus HTTP API 的路由与请求/响应类型。
//
// # API Overview
//
//	POST /api/v1/query      {"query": "...", "preference": "auto|hybrid|kb_only|web_only"}
//	GET  /api/v1/query/ws   websocket，每条 {"id", "query", "preference"} 消息回复一帧
//	GET  /health /healthz   存活探针
//	GET  /ready /readyz     依赖检查（cache、database、qdrant）
//	GET  /version           构建信息
//
// # Authentication
//
// 配置了 API Key 时，请求需携带 X-API-Key 头；配置了 JWT 时可改用
// Authorization: Bearer <token>。PublicPaths 中的路径不做认证。
//
// 成功响应为 {"success": true, "data": PipelineResult}，错误响应为
// {"success": false, "error": {"code", "message"}}。
package api
