/*
包 server 管理 Nexus 的 HTTP 监听生命周期：API 服务与 Prometheus
指标服务各自由一个 Manager 持有。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，Start/StartTLS 非阻塞
    启动，Run 阻塞直到 ctx 结束或服务异常退出，Shutdown 幂等。
  - Config：监听地址与超时，可由 config.ServerConfig 推导。

TLS 模式使用 internal/tlsutil 的默认 TLS 配置（TLS 1.2+）。
*/
package server
