// Copyright (c) Nexus Authors.
// Licensed under the MIT License.

/*
# 概述

Package rag 实现 Nexus 的查询路由与检索编排管线：对查询进行意图分类，
选择检索策略（知识库、Web 或两者），执行带缓存的检索，最后交给 LLM
合成带引用的答案。

# 核心类型

  - Strategy / Preference — kb_only | web_only | hybrid 策略枚举与用户偏好
  - Classifier — 基于 LLM 的查询分类，失败时降级为 {general, false, hybrid}
  - KnowledgeBaseRetriever — 知识库相似度检索，任何错误都返回空结果
  - WebRetriever — Web 搜索 + 持久化结果缓存（24h TTL，键为规范化查询的 MD5）
  - Researcher — 按策略驱动两个检索器，kb_only 空结果时回退 Web
  - Synthesizer — 组装 KB/Web 引用块并调用 LLM 合成答案
  - Pipeline — Classifier → Researcher → Synthesizer 顺序执行，输出 PipelineResult
  - Outcome[T] — 协作方边界的成功/降级结果

# 外部协作方

  - QdrantStore — Qdrant REST 相似度检索
  - TavilySearcher — Tavily 搜索 API
  - llm.Provider — 分类与合成使用的对话模型
*/
package rag
