// Copyright (c) Nexus Authors.
// Licensed under the MIT License.

/*
Package types 提供 Nexus 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、llm、config、api
等上层模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - ErrConfiguration  — 缺失 OPENAI_API_KEY / TAVILY_API_KEY 等启动期错误

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewConfigurationError / NewInvalidRequestError
*/
package types
