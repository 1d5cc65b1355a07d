// =============================================================================
// 📦 测试数据工厂 - LLM 响应与检索片段
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/nexus/llm"
	"github.com/BaSui01/nexus/rag"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4o-mini",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: llm.Message{
					Role:    llm.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// EmptyResponse 返回没有 choice 的响应
func EmptyResponse() *llm.ChatResponse {
	return &llm.ChatResponse{ID: "resp-empty", Provider: "mock", Model: "gpt-4o-mini"}
}

// ClassificationJSON 渲染分类器输出
func ClassificationJSON(queryType string, hasTemporal bool, strategy string) string {
	return fmt.Sprintf(`{"type": %q, "has_temporal": %t, "search_strategy": %q}`, queryType, hasTemporal, strategy)
}

// =============================================================================
// 📚 检索片段
// =============================================================================

// KBPassages 返回 n 条知识库片段
func KBPassages(n int) []rag.KBPassage {
	out := make([]rag.KBPassage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rag.KBPassage{
			Content:    fmt.Sprintf("The Transformer relies entirely on attention (chunk %d).", i),
			Source:     "attention_is_all_you_need.pdf",
			ChunkIndex: i,
			Score:      0.9 - float64(i)*0.1,
		})
	}
	return out
}

// WebPassages 返回 n 条 Web 结果
func WebPassages(n int) []rag.WebPassage {
	out := make([]rag.WebPassage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rag.WebPassage{
			Title:   fmt.Sprintf("Transformer news %d", i),
			URL:     fmt.Sprintf("https://example.com/news/%d", i),
			Content: "It was introduced in the 2017 paper 'Attention Is All You Need'.",
		})
	}
	return out
}
