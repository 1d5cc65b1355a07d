// Copyright (c) Nexus Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、LLM、
查询管线、搜索缓存与数据库连接池。

# 概述

Collector 统一注册并记录指标，所有指标按 namespace 隔离。
Collector 实现了 rag.Observer，管线运行时直接回调；同时实现
openai.RequestRecorder 记录每次上游 LLM 调用。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、耗时与 Token 用量，按 provider/model 分组。
  - 管线指标：按策略统计查询数与端到端耗时，分类、检索、合成
    各阶段的调用结果（ok/degraded）与耗时。
  - 缓存指标：Web 搜索缓存命中与未命中。
  - 数据库指标：连接池打开/使用中/空闲连接数。
*/
package metrics
