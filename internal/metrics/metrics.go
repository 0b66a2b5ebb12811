// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Authentication gate metrics
	IncAuthRejected(reason string)
	IncAPIKeyCacheHit()
	IncAPIKeyCacheMiss()

	// Quota metrics
	IncQuotaDecision(outcome string) // outcome: "admitted", "rejected", "overage"

	// Usage pipeline metrics
	IncUsagePublished(status string) // status: "success" or "dropped"
	IncUsageProcessed(status string) // status: "success", "failed", "skipped"
	ObserveUsageBatchSize(size int)
	ObserveUsageBatchDuration(duration time.Duration)
	SetUsageQueueDepth(depth int64)

	// Stock change events
	IncStockEvent(eventType, status string)
}

// Quota decision outcomes.
const (
	QuotaAdmitted = "admitted"
	QuotaRejected = "rejected"
	QuotaOverage  = "overage"
)
