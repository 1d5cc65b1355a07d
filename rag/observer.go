package rag

import "time"

// Observer 管线事件回调，由 metrics 包实现
type Observer interface {
	ObserveClassification(strategy Strategy, degraded bool, d time.Duration)
	ObserveRetrieval(source SourceType, results int, degraded bool, d time.Duration)
	ObserveWebCache(hit bool)
	ObserveSynthesis(promptTokens int, degraded bool, d time.Duration)
	ObservePipeline(strategy Strategy, manual bool, d time.Duration)
}

// NopObserver 空实现
type NopObserver struct{}

func (NopObserver) ObserveClassification(Strategy, bool, time.Duration) {}
func (NopObserver) ObserveRetrieval(SourceType, int, bool, time.Duration) {}
func (NopObserver) ObserveWebCache(bool) {}
func (NopObserver) ObserveSynthesis(int, bool, time.Duration) {}
func (NopObserver) ObservePipeline(Strategy, bool, time.Duration) {}

// Observers 将事件广播到多个观察者，nil 项被忽略
func Observers(observers ...Observer) Observer {
	var list multiObserver
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return NopObserver{}
	case 1:
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) ObserveClassification(s Strategy, degraded bool, d time.Duration) {
	for _, o := range m {
		o.ObserveClassification(s, degraded, d)
	}
}

func (m multiObserver) ObserveRetrieval(source SourceType, results int, degraded bool, d time.Duration) {
	for _, o := range m {
		o.ObserveRetrieval(source, results, degraded, d)
	}
}

func (m multiObserver) ObserveWebCache(hit bool) {
	for _, o := range m {
		o.ObserveWebCache(hit)
	}
}

func (m multiObserver) ObserveSynthesis(promptTokens int, degraded bool, d time.Duration) {
	for _, o := range m {
		o.ObserveSynthesis(promptTokens, degraded, d)
	}
}

func (m multiObserver) ObservePipeline(s Strategy, manual bool, d time.Duration) {
	for _, o := range m {
		o.ObservePipeline(s, manual, d)
	}
}
