// Copyright 2025-2026 Nexus Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 llm 提供对话模型接入层的最小契约。

# 概述

分类器与合成器只依赖 [Provider] 接口，具体服务商实现位于
llm/providers/openai。向量化与 Token 计数分别位于 llm/embedding 与
llm/tokenizer。

# 核心接口

  - [Provider]：Completion / HealthCheck / Name
  - [ChatRequest]：Temperature 总是随请求发送，ResponseFormat 支持 json_object
  - [Error]：上游错误，按 HTTP 状态映射错误码与可重试性
*/
package llm
