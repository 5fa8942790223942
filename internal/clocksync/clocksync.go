// Package clocksync estimates the offset between two wall clocks from
// round-trip probes. Players run the same arithmetic client-side; the server
// keeps an estimator per connection for latency diagnostics.
package clocksync

import (
	"sync"
	"time"
)

// SmoothingFactor is the weight of a new sample when blending into the
// running estimate; the remainder stays with the previous value.
const SmoothingFactor = 0.3

// DefaultRounds is how many probes a client sends on connect before
// switching to on-demand syncing.
const DefaultRounds = 5

// Estimator smooths clock-offset and round-trip samples with an exponential
// moving average. The zero value is usable and reports a zero offset, which
// degrades to unsynchronized local timing.
type Estimator struct {
	mu      sync.Mutex
	offset  time.Duration
	rtt     time.Duration
	samples int
}

// Observe records one completed probe. sent and received are local
// timestamps around the round trip; remote is the peer's clock reading
// stamped mid-flight. The first sample sets the estimate outright.
func (e *Estimator) Observe(sent, received, remote time.Time) {
	rtt := received.Sub(sent)
	if rtt < 0 {
		return
	}
	offset := remote.Add(rtt / 2).Sub(received)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.samples == 0 {
		e.offset = offset
		e.rtt = rtt
	} else {
		e.offset = blend(e.offset, offset)
		e.rtt = blend(e.rtt, rtt)
	}
	e.samples++
}

// ObserveRTT records a round-trip measurement with no remote clock reading,
// as produced by the ping/pong pair.
func (e *Estimator) ObserveRTT(rtt time.Duration) {
	if rtt < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.samples == 0 {
		e.rtt = rtt
	} else {
		e.rtt = blend(e.rtt, rtt)
	}
	e.samples++
}

// Offset returns the current clock-offset estimate.
func (e *Estimator) Offset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offset
}

// RTT returns the smoothed round-trip time.
func (e *Estimator) RTT() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rtt
}

// Synced reports whether at least one probe completed.
func (e *Estimator) Synced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples > 0
}

// Now converts a local clock reading into the estimated remote time.
func (e *Estimator) Now(local time.Time) time.Time {
	return local.Add(e.Offset())
}

func blend(old, sample time.Duration) time.Duration {
	return time.Duration(float64(sample)*SmoothingFactor + float64(old)*(1-SmoothingFactor))
}
