package rag

// SourceType 检索结果来源
type SourceType string

const (
	SourceKB  SourceType = "kb"
	SourceWeb SourceType = "web"
)

// KBPassage 知识库检索返回的文档片段
type KBPassage struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score,omitempty"`
}

// WebPassage Web 搜索返回的结果，也是缓存中序列化的结构
type WebPassage struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}
