package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/nexus/rag"
)

// SearchCall 记录一次检索调用
type SearchCall struct {
	Query string
	Limit int
}

// --- MockWebSearcher ---

// MockWebSearcher 是 rag.WebSearcher 的模拟实现
type MockWebSearcher struct {
	mu      sync.Mutex
	results []rag.WebPassage
	err     error
	calls   []SearchCall
	block   chan struct{}
}

// NewMockWebSearcher 创建 MockWebSearcher
func NewMockWebSearcher() *MockWebSearcher {
	return &MockWebSearcher{}
}

// WithResults 设置返回结果
func (m *MockWebSearcher) WithResults(results []rag.WebPassage) *MockWebSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	return m
}

// WithError 设置返回错误
func (m *MockWebSearcher) WithError(err error) *MockWebSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithBlock 搜索阻塞直到 ch 关闭
func (m *MockWebSearcher) WithBlock(ch chan struct{}) *MockWebSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = ch
	return m
}

func (m *MockWebSearcher) Name() string { return "mock" }

// Search 返回预设结果
func (m *MockWebSearcher) Search(ctx context.Context, query string, maxResults int) ([]rag.WebPassage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, SearchCall{Query: query, Limit: maxResults})
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]rag.WebPassage(nil), m.results...), nil
}

// Calls 返回调用记录
func (m *MockWebSearcher) Calls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockWebSearcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- MockKnowledgeBase ---

// MockKnowledgeBase 是 rag.SimilaritySearcher 的模拟实现
type MockKnowledgeBase struct {
	mu      sync.Mutex
	results []rag.KBPassage
	err     error
	calls   []SearchCall
}

// NewMockKnowledgeBase 创建 MockKnowledgeBase
func NewMockKnowledgeBase() *MockKnowledgeBase {
	return &MockKnowledgeBase{}
}

// WithResults 设置返回结果
func (m *MockKnowledgeBase) WithResults(results []rag.KBPassage) *MockKnowledgeBase {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	return m
}

// WithError 设置返回错误
func (m *MockKnowledgeBase) WithError(err error) *MockKnowledgeBase {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// SimilaritySearch 返回预设结果（不截断，由检索器负责）
func (m *MockKnowledgeBase) SimilaritySearch(_ context.Context, query string, topK int) ([]rag.KBPassage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SearchCall{Query: query, Limit: topK})
	if m.err != nil {
		return nil, m.err
	}
	return append([]rag.KBPassage(nil), m.results...), nil
}

// Calls 返回调用记录
func (m *MockKnowledgeBase) Calls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockKnowledgeBase) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var (
	_ rag.WebSearcher        = (*MockWebSearcher)(nil)
	_ rag.SimilaritySearcher = (*MockKnowledgeBase)(nil)
)
