// Copyright (c) Nexus Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 Nexus 测试的共享工具和辅助函数。

# 概述

testutil 为各包的单元测试提供统一的上下文、断言与数据辅助，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 数据工具: AssertJSONEqual

# 子包

  - testutil/mocks: MockProvider（LLM Provider）、MockWebSearcher、
    MockKnowledgeBase，均支持 Builder 模式、调用记录与错误注入
  - testutil/fixtures: 预置 ChatResponse、分类 JSON、KB/Web 片段样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse(fixtures.ClassificationJSON("factual", false, "kb_only"))
	classifier := rag.NewClassifier(provider, rag.DefaultClassifierConfig(), nil)
	result := classifier.Classify(ctx, "What is RAG?")
*/
package testutil
