// Package tokenizer 提供 Token 计数能力.
//
// TiktokenTokenizer 使用 tiktoken-go 精确计数（首次使用时加载编码数据），
// EstimatorTokenizer 提供离线估算。二者都满足 Counter 接口，
// 由合成器用于记录提示词规模。
package tokenizer
