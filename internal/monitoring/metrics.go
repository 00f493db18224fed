package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics. Counters are updated atomically by
// handlers and workers.
type Metrics struct {
	RequestCount int64
	ErrorCount   int64

	GradingRuns      int64
	EnhancementCalls int64
	EnhancementFails int64

	JobsEnqueued   int64
	JobsCompleted  int64
	JobsRetried    int64
	JobsDuplicated int64 // redeliveries skipped by the idempotency check

	RateLimitBlocks    int64
	RateLimitFallbacks int64

	StartTime time.Time

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		requestCountByStatus: make(map[int]int64),
	}
}

func (m *Metrics) IncrementRequest()         { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()           { atomic.AddInt64(&m.ErrorCount, 1) }
func (m *Metrics) IncrementGradingRun()      { atomic.AddInt64(&m.GradingRuns, 1) }
func (m *Metrics) IncrementEnhancement()     { atomic.AddInt64(&m.EnhancementCalls, 1) }
func (m *Metrics) IncrementEnhancementFail() { atomic.AddInt64(&m.EnhancementFails, 1) }
func (m *Metrics) IncrementJobsEnqueued()    { atomic.AddInt64(&m.JobsEnqueued, 1) }
func (m *Metrics) IncrementJobsCompleted()   { atomic.AddInt64(&m.JobsCompleted, 1) }
func (m *Metrics) IncrementJobsRetried()     { atomic.AddInt64(&m.JobsRetried, 1) }
func (m *Metrics) IncrementJobsDuplicated()  { atomic.AddInt64(&m.JobsDuplicated, 1) }

func (m *Metrics) IncrementRateLimitBlock()    { atomic.AddInt64(&m.RateLimitBlocks, 1) }
func (m *Metrics) IncrementRateLimitFallback() { atomic.AddInt64(&m.RateLimitFallbacks, 1) }

// RecordStatus tracks a response status code.
func (m *Metrics) RecordStatus(code int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[code]++
}

// GetStats returns a snapshot for the health endpoint.
func (m *Metrics) GetStats() map[string]any {
	m.statusMutex.RLock()
	byStatus := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		byStatus[code] = count
	}
	m.statusMutex.RUnlock()

	return map[string]any{
		"request_count":      atomic.LoadInt64(&m.RequestCount),
		"error_count":        atomic.LoadInt64(&m.ErrorCount),
		"grading_runs":       atomic.LoadInt64(&m.GradingRuns),
		"enhancement_calls":  atomic.LoadInt64(&m.EnhancementCalls),
		"enhancement_fails":  atomic.LoadInt64(&m.EnhancementFails),
		"jobs_enqueued":      atomic.LoadInt64(&m.JobsEnqueued),
		"jobs_completed":     atomic.LoadInt64(&m.JobsCompleted),
		"jobs_retried":       atomic.LoadInt64(&m.JobsRetried),
		"jobs_duplicated":    atomic.LoadInt64(&m.JobsDuplicated),
		"rate_limit_blocks":  atomic.LoadInt64(&m.RateLimitBlocks),
		"requests_by_status": byStatus,
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
	}
}
