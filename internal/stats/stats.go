// Package stats aggregates per-request metrics for the terminal
// summary: a status-code tally and service-time percentiles.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	Requests   uint64
	HardErrors uint64
	Bytes      uint64

	// Service time histogram (microseconds)
	Service *SafeHistogram

	mu    sync.Mutex
	tally map[int]uint64
}

func New() *Stats {
	return &Stats{
		Service: NewSafeHistogram(),
		tally:   make(map[int]uint64),
	}
}

// RecordExchange tallies a completed HTTP exchange of any status.
// A non-2xx status is an outcome, not an error.
func (s *Stats) RecordExchange(status int, bytes int64, service time.Duration) {
	atomic.AddUint64(&s.Requests, 1)
	atomic.AddUint64(&s.Bytes, uint64(bytes))
	s.Service.RecordValue(service.Microseconds())

	s.mu.Lock()
	s.tally[status]++
	s.mu.Unlock()
}

// RecordHardError counts a request-level failure (connection, I/O,
// timeout).
func (s *Stats) RecordHardError() {
	atomic.AddUint64(&s.Requests, 1)
	atomic.AddUint64(&s.HardErrors, 1)
}

// Tally returns a copy of the status-code tally.
func (s *Stats) Tally() map[int]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]uint64, len(s.tally))
	for k, v := range s.tally {
		out[k] = v
	}
	return out
}

func (s *Stats) PercentileMs(q float64) float64 {
	return float64(s.Service.ValueAtQuantile(q)) / 1000.0
}

func (s *Stats) MaxMs() int64 {
	return s.Service.Max() / 1000
}
