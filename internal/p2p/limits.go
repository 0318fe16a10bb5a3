package p2p

import (
	"sync/atomic"

	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

// InflightLimiter caps how many inbound entries a node processes at once.
// A zero or negative max disables the cap.
type InflightLimiter struct {
	max  int64
	open int64
}

func NewInflightLimiter(max int64) *InflightLimiter { return &InflightLimiter{max: max} }

// TryAcquire takes a slot, or records a rate-limit hit and returns false.
func (l *InflightLimiter) TryAcquire() bool {
	if l == nil || l.max <= 0 {
		return true
	}
	for {
		o := atomic.LoadInt64(&l.open)
		if o >= l.max {
			metrics.Inc(MetricRelayLimited, map[string]string{"kind": "inflight"})
			return false
		}
		if atomic.CompareAndSwapInt64(&l.open, o, o+1) {
			metrics.AddGauge(MetricRelayInflight, nil, 1)
			return true
		}
	}
}

func (l *InflightLimiter) Release() {
	if l == nil || l.max <= 0 {
		return
	}
	for {
		o := atomic.LoadInt64(&l.open)
		if o <= 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&l.open, o, o-1) {
			metrics.AddGauge(MetricRelayInflight, nil, -1)
			return
		}
	}
}

func (l *InflightLimiter) Open() int64 {
	if l == nil {
		return 0
	}
	return atomic.LoadInt64(&l.open)
}
