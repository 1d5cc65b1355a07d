package rag

import (
	"strings"
)

// =============================================================================
// 🧭 检索策略
// =============================================================================

// Strategy 决定执行哪些检索器；零值为 hybrid
type Strategy uint8

const (
	StrategyHybrid Strategy = iota
	StrategyKBOnly
	StrategyWebOnly
)

var strategyNames = [...]string{
	StrategyHybrid:  "hybrid",
	StrategyKBOnly:  "kb_only",
	StrategyWebOnly: "web_only",
}

// Strategies 返回全部策略
func Strategies() []Strategy {
	return []Strategy{StrategyKBOnly, StrategyWebOnly, StrategyHybrid}
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return strategyNames[StrategyHybrid]
}

// ParseStrategy 解析策略名；未知值返回 (StrategyHybrid, false)
func ParseStrategy(s string) (Strategy, bool) {
	switch strings.TrimSpace(s) {
	case "kb_only":
		return StrategyKBOnly, true
	case "web_only":
		return StrategyWebOnly, true
	case "hybrid":
		return StrategyHybrid, true
	default:
		return StrategyHybrid, false
	}
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 未知值解析为 hybrid，不返回错误
func (s *Strategy) UnmarshalText(b []byte) error {
	*s, _ = ParseStrategy(string(b))
	return nil
}

// =============================================================================
// 🎛️ 用户偏好
// =============================================================================

// PreferenceAuto 表示由分类器决定策略
const PreferenceAuto = "auto"

// Preference 用户指定的策略偏好：auto 或一个具体策略
type Preference struct {
	auto     bool
	strategy Strategy
	raw      string
}

// AutoPreference 返回 auto 偏好
func AutoPreference() Preference {
	return Preference{auto: true, raw: PreferenceAuto}
}

// ManualPreference 返回指定策略的偏好
func ManualPreference(s Strategy) Preference {
	return Preference{strategy: s, raw: s.String()}
}

// ParsePreference 解析偏好。只有精确的 "auto" 与未填写（空串）走分类器，
// 其余值（包括 "AUTO"）都按手动策略解析，无法识别时为 hybrid。
func ParsePreference(s string) Preference {
	if s == "" || s == PreferenceAuto {
		return AutoPreference()
	}
	strategy, _ := ParseStrategy(s)
	return Preference{strategy: strategy, raw: s}
}

func (p Preference) IsAuto() bool { return p.auto }

// Strategy 手动偏好对应的策略；auto 偏好返回 hybrid
func (p Preference) Strategy() Strategy { return p.strategy }

// Raw 调用方传入的原始值
func (p Preference) Raw() string { return p.raw }

func (p Preference) String() string {
	if p.auto {
		return PreferenceAuto
	}
	return p.strategy.String()
}

// =============================================================================
// 🏷️ 查询类型
// =============================================================================

// QueryType 分类器识别的查询类型
type QueryType string

const (
	QueryTypeExplanation QueryType = "explanation"
	QueryTypeFactual     QueryType = "factual"
	QueryTypeComparison  QueryType = "comparison"
	QueryTypeGeneral     QueryType = "general"
)

// ParseQueryType 未知类型归为 general
func ParseQueryType(s string) QueryType {
	switch t := QueryType(strings.ToLower(strings.TrimSpace(s))); t {
	case QueryTypeExplanation, QueryTypeFactual, QueryTypeComparison:
		return t
	default:
		return QueryTypeGeneral
	}
}
