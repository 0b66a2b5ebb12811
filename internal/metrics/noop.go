package metrics

import "time"

var _ Recorder = (*NoopRecorder)(nil)

// NoopRecorder discards every event. It backs tests and METRICS_ENABLED=false.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
func (n *NoopRecorder) IncAuthRejected(string)                                {}
func (n *NoopRecorder) IncAPIKeyCacheHit()                                    {}
func (n *NoopRecorder) IncAPIKeyCacheMiss()                                   {}
func (n *NoopRecorder) IncQuotaDecision(string)                               {}
func (n *NoopRecorder) IncUsagePublished(string)                              {}
func (n *NoopRecorder) IncUsageProcessed(string)                              {}
func (n *NoopRecorder) ObserveUsageBatchSize(int)                             {}
func (n *NoopRecorder) ObserveUsageBatchDuration(time.Duration)               {}
func (n *NoopRecorder) SetUsageQueueDepth(int64)                              {}
func (n *NoopRecorder) IncStockEvent(string, string)                          {}
