package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nexus/llm"
)

// ErrOpen 熔断打开期间直接拒绝调用
var ErrOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State int

const (
	// StateClosed 正常放行
	StateClosed State = iota
	// StateOpen 熔断中，全部拒绝
	StateOpen
	// StateHalfOpen 试探恢复，放行有限数量的调用
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Name 出现在日志与指标标签中
	Name string

	// Threshold 连续失败次数阈值
	Threshold int

	// ResetTimeout Open -> HalfOpen 的等待时间
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的并发试探数
	HalfOpenMaxCalls int

	// IsFailure 判断错误是否计入失败，默认 IsFailure
	IsFailure func(error) bool

	// OnStateChange 状态变更回调，在锁外调用
	OnStateChange func(name string, from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker 按连续失败次数熔断的状态机，可并发使用
type Breaker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	halfOpenUsed int
}

// New 创建熔断器，非法参数回退到默认值
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsFailure
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", cfg.Name)),
		now:    time.Now,
	}
}

// Name 返回熔断器名称
func (b *Breaker) Name() string { return b.cfg.Name }

// State 返回当前状态；Open 超过 ResetTimeout 时报告 HalfOpen
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset 手动恢复到 Closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.halfOpenUsed = 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

// allow 调用前检查，返回是否为半开试探调用
func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()
	var from State
	transitioned := false
	defer func() {
		if transitioned {
			b.notify(from, StateHalfOpen)
		}
	}()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrOpen
		}
		from, transitioned = b.state, true
		b.state = StateHalfOpen
		b.halfOpenUsed = 0
		fallthrough
	default: // StateHalfOpen
		if b.halfOpenUsed >= b.cfg.HalfOpenMaxCalls {
			return false, ErrOpen
		}
		b.halfOpenUsed++
		return true, nil
	}
}

// record 调用后更新状态
func (b *Breaker) record(probe bool, err error) {
	failed := err != nil && b.cfg.IsFailure(err)

	b.mu.Lock()
	from := b.state
	to := from
	switch {
	case !failed:
		b.failures = 0
		if probe && b.state == StateHalfOpen {
			to = StateClosed
		}
	case probe || b.state == StateHalfOpen:
		to = StateOpen
	default:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			to = StateOpen
		}
	}
	if probe && b.halfOpenUsed > 0 {
		b.halfOpenUsed--
	}
	if to != from {
		b.state = to
		switch to {
		case StateOpen:
			b.openedAt = b.now()
		case StateClosed:
			b.failures = 0
			b.halfOpenUsed = 0
		}
	}
	b.mu.Unlock()

	if to != from {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	b.logger.Info("circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// Do 在熔断保护下执行 fn；熔断打开时返回 ErrOpen 且不调用 fn
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	probe, err := b.allow()
	if err != nil {
		var zero T
		return zero, err
	}
	result, err := fn(ctx)
	b.record(probe, err)
	return result, err
}

// IsFailure 默认失败判定：调用方取消与客户端错误（4xx，429 除外）不计入
func IsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		status := llmErr.HTTPStatus
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}
