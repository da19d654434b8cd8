package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Gateway-level counters, incremented by the provider adapters.
var (
	PaymentsInitiated Counter
	VerifySucceeded   Counter
	VerifyFailed      Counter
	RefundRequested   Counter
	ProviderErrors    Counter
)

// Snapshot returns the current counter values, served on /metrics.
func Snapshot() map[string]uint64 {
	return map[string]uint64{
		"payments_initiated": PaymentsInitiated.Load(),
		"verify_succeeded":   VerifySucceeded.Load(),
		"verify_failed":      VerifyFailed.Load(),
		"refund_requested":   RefundRequested.Load(),
		"provider_errors":    ProviderErrors.Load(),
	}
}
