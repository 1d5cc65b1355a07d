/*
Package main 提供 nexus 可执行程序。

# 子命令

  - serve    启动 API 服务（默认 :8080）与 Prometheus 指标服务（默认 :9091）
  - ask      对单个问题运行完整管线，结果以 JSON 写到 stdout
  - migrate  管理搜索缓存表结构（up / down / reset / status / version / force）
  - version  打印构建信息
  - health   探测运行中实例的 /health 或 /ready

# 组件装配

App 按配置依次构建遥测、Prometheus 注册表、搜索缓存（memory、redis、
mongo 或 database）、OpenAI 对话与向量化客户端、Qdrant 知识库、Tavily
Web 检索，并组装为 rag.Pipeline。缺少 OPENAI_API_KEY 或 TAVILY_API_KEY
时启动失败，退出码为 1。

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → Metrics →
OTelTracing → CORS → Auth（API Key / JWT）→ RateLimiter。
限流位于认证之后，已认证请求按主体计数，其余按客户端 IP。

# 构建注入

Version、BuildTime、GitCommit 通过 -ldflags 设置。
*/
package main
