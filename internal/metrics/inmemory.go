package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	HTTPRequests     uint64
	AuthRejected     map[string]uint64
	APIKeyCacheHits  uint64
	APIKeyCacheMiss  uint64
	QuotaDecisions   map[string]uint64
	UsagePublished   map[string]uint64
	UsageProcessed   map[string]uint64
	UsageQueueDepth  int64
	StockEventsTotal uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	httpRequests    uint64
	apiKeyCacheHits uint64
	apiKeyCacheMiss uint64
	queueDepth      int64
	stockEvents     uint64

	mu             sync.Mutex
	authRejected   map[string]uint64
	quotaDecisions map[string]uint64
	usagePublished map[string]uint64
	usageProcessed map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		authRejected:   make(map[string]uint64),
		quotaDecisions: make(map[string]uint64),
		usagePublished: make(map[string]uint64),
		usageProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		HTTPRequests:     atomic.LoadUint64(&m.httpRequests),
		AuthRejected:     copyCounts(m.authRejected),
		APIKeyCacheHits:  atomic.LoadUint64(&m.apiKeyCacheHits),
		APIKeyCacheMiss:  atomic.LoadUint64(&m.apiKeyCacheMiss),
		QuotaDecisions:   copyCounts(m.quotaDecisions),
		UsagePublished:   copyCounts(m.usagePublished),
		UsageProcessed:   copyCounts(m.usageProcessed),
		UsageQueueDepth:  atomic.LoadInt64(&m.queueDepth),
		StockEventsTotal: atomic.LoadUint64(&m.stockEvents),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

// ObserveHTTPRequest counts requests.
func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}

// IncAuthRejected counts rejections by reason.
func (m *InMemoryRecorder) IncAuthRejected(reason string) { m.inc(m.authRejected, reason) }

// IncAPIKeyCacheHit increments the identity cache hit counter.
func (m *InMemoryRecorder) IncAPIKeyCacheHit() { atomic.AddUint64(&m.apiKeyCacheHits, 1) }

// IncAPIKeyCacheMiss increments the identity cache miss counter.
func (m *InMemoryRecorder) IncAPIKeyCacheMiss() { atomic.AddUint64(&m.apiKeyCacheMiss, 1) }

// IncQuotaDecision counts quota outcomes.
func (m *InMemoryRecorder) IncQuotaDecision(outcome string) { m.inc(m.quotaDecisions, outcome) }

// IncUsagePublished counts usage records handed to the stream.
func (m *InMemoryRecorder) IncUsagePublished(status string) { m.inc(m.usagePublished, status) }

// IncUsageProcessed counts usage records handled by the worker.
func (m *InMemoryRecorder) IncUsageProcessed(status string) { m.inc(m.usageProcessed, status) }

// ObserveUsageBatchSize is not tracked in memory.
func (m *InMemoryRecorder) ObserveUsageBatchSize(int) {}

// ObserveUsageBatchDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveUsageBatchDuration(time.Duration) {}

// SetUsageQueueDepth stores the last observed stream depth.
func (m *InMemoryRecorder) SetUsageQueueDepth(depth int64) { atomic.StoreInt64(&m.queueDepth, depth) }

// IncStockEvent counts stock events.
func (m *InMemoryRecorder) IncStockEvent(string, string) { atomic.AddUint64(&m.stockEvents, 1) }
