package pipeline

import (
	"sync"
	"time"
)

// Stats tracks processing counters for the stats surface and the digest.
type Stats struct {
	mu        sync.Mutex
	processed int64
	responded int64
	control   int64
	errors    int64
	skipped   map[string]int64
	started   time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed int64            `json:"processed"`
	Responded int64            `json:"responded"`
	Control   int64            `json:"control"`
	Errors    int64            `json:"errors"`
	Skipped   map[string]int64 `json:"skipped"`
	Uptime    time.Duration    `json:"uptime"`
}

func NewStats() *Stats {
	return &Stats{skipped: make(map[string]int64), started: time.Now()}
}

func (s *Stats) RecordProcessed(responded bool) {
	s.mu.Lock()
	s.processed++
	if responded {
		s.responded++
	}
	s.mu.Unlock()
}

func (s *Stats) RecordControl() {
	s.mu.Lock()
	s.control++
	s.processed++
	s.mu.Unlock()
}

func (s *Stats) RecordSkipped(reason string) {
	s.mu.Lock()
	s.skipped[reason]++
	s.mu.Unlock()
}

func (s *Stats) RecordError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	skipped := make(map[string]int64, len(s.skipped))
	for k, v := range s.skipped {
		skipped[k] = v
	}
	return Snapshot{
		Processed: s.processed,
		Responded: s.responded,
		Control:   s.control,
		Errors:    s.errors,
		Skipped:   skipped,
		Uptime:    time.Since(s.started),
	}
}
