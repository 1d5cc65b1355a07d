/*
Package handlers 提供 Nexus HTTP API 的请求处理器。

# 核心类型

  - QueryHandler       — POST /api/v1/query，运行检索增强问答管线
  - QueryStreamHandler — /api/v1/query/ws，websocket 上逐条问答
  - HealthHandler      — /health、/healthz、/ready、/version
  - Response           — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter     — 捕获状态码的 http.ResponseWriter 包装

所有错误以 types.Error 表达，WriteError 按错误码映射 HTTP 状态码。
管线内部的降级不会转成 HTTP 错误，只有请求本身非法时返回 4xx。
*/
package handlers
