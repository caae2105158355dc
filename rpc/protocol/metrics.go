package protocol

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

// Metrics counts the requests of all sessions of a server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	set      *metrics.Set
	requests atomic.Uint64
	errors   atomic.Uint64
}

// NewMetrics registers the request metrics in set
func NewMetrics(set *metrics.Set) *Metrics {
	return &Metrics{set: set}
}

// observe records one finished request
func (m *Metrics) observe(op OpCode, code store.RetCode, start time.Time) {
	if m == nil {
		return
	}
	m.requests.Add(1)
	m.set.GetOrCreateCounter(fmt.Sprintf(`vkv_requests_total{op=%q}`, op)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`vkv_request_duration_seconds{op=%q}`, op)).Update(time.Since(start).Seconds())
	if code != store.RetCSuccess {
		m.errors.Add(1)
		m.set.GetOrCreateCounter(fmt.Sprintf(`vkv_request_errors_total{code=%q}`, code)).Inc()
	}
}

// framingFailure records a request that ended the session
func (m *Metrics) framingFailure() {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(`vkv_framing_errors_total`).Inc()
}

// Requests returns the number of handled requests
func (m *Metrics) Requests() uint64 {
	if m == nil {
		return 0
	}
	return m.requests.Load()
}

// Errors returns the number of requests answered with an error code
func (m *Metrics) Errors() uint64 {
	if m == nil {
		return 0
	}
	return m.errors.Load()
}
