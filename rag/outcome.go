package rag

// Outcome 协作方边界的调用结果。
// Err 非 nil 时 Value 为降级后的默认值，调用方可以直接使用。
type Outcome[T any] struct {
	Value     T
	Err       error
	FromCache bool
}

// Succeeded 成功结果
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Cached 来自缓存的成功结果
func Cached[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, FromCache: true}
}

// Degraded 失败后的降级结果
func Degraded[T any](fallback T, err error) Outcome[T] {
	return Outcome[T]{Value: fallback, Err: err}
}

// OK 是否成功
func (o Outcome[T]) OK() bool { return o.Err == nil }
