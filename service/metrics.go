package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks how often each operation ran and how long it took.
type MetricsCollector struct {
	mu  sync.RWMutex
	ops map[string]*operationStats
}

type operationStats struct {
	count     int
	failures  int
	total     time.Duration
	lastRun   time.Time
	lastError string
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	Count          int       `json:"count"`
	Failures       int       `json:"failures"`
	ProcessingTime int64     `json:"processing_time_ms"`
	AverageTime    int64     `json:"average_time_ms"`
	LastRun        time.Time `json:"last_run"`
	LastError      string    `json:"last_error,omitempty"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{ops: make(map[string]*operationStats)}
}

func (mc *MetricsCollector) Observe(op string, start time.Time, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	st, ok := mc.ops[op]
	if !ok {
		st = &operationStats{}
		mc.ops[op] = st
	}
	st.count++
	st.total += time.Since(start)
	st.lastRun = start
	if err != nil {
		st.failures++
		st.lastError = err.Error()
	}
}

func (mc *MetricsCollector) Snapshot() map[string]OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make(map[string]OperationMetrics, len(mc.ops))
	for op, st := range mc.ops {
		m := OperationMetrics{
			Count:          st.count,
			Failures:       st.failures,
			ProcessingTime: st.total.Milliseconds(),
			LastRun:        st.lastRun,
			LastError:      st.lastError,
		}
		if st.count > 0 {
			m.AverageTime = st.total.Milliseconds() / int64(st.count)
		}
		out[op] = m
	}
	return out
}
