package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/routemind/routemind/core"
)

// statsCollector accumulates per-destination throughput and latency
// between introspection flushes.
type statsCollector struct {
	mu        sync.Mutex
	processed map[core.Destination]int64
	latency   map[core.Destination]time.Duration

	queueDepth func(core.Destination) (int64, bool)
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		processed: make(map[core.Destination]int64),
		latency:   make(map[core.Destination]time.Duration),
	}
}

func (s *statsCollector) setQueueDepthHook(fn func(core.Destination) (int64, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueDepth = fn
}

func (s *statsCollector) record(dest core.Destination, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[dest]++
	s.latency[dest] += latency
}

// snapshot drains the counters accumulated since the previous flush.
func (s *statsCollector) snapshot() (map[core.Destination]int64, map[core.Destination]time.Duration, func(core.Destination) (int64, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	processed := s.processed
	latency := s.latency
	s.processed = make(map[core.Destination]int64)
	s.latency = make(map[core.Destination]time.Duration)
	return processed, latency, s.queueDepth
}

// run logs per-destination throughput and rolling average latency on every
// tick until the context is cancelled.
func (s *statsCollector) run(ctx context.Context, interval time.Duration, logger core.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(interval, logger)
		}
	}
}

func (s *statsCollector) flush(interval time.Duration, logger core.Logger) {
	if logger == nil {
		return
	}

	processed, latency, depthHook := s.snapshot()
	for _, dest := range core.Destinations {
		count := processed[dest]
		if count == 0 {
			continue
		}

		fields := map[string]interface{}{
			"destination":    string(dest),
			"processed":      count,
			"throughput_s":   float64(count) / interval.Seconds(),
			"avg_latency_ms": (latency[dest] / time.Duration(count)).Milliseconds(),
		}
		if depthHook != nil {
			if depth, ok := depthHook(dest); ok {
				fields["queue_depth"] = depth
			}
		}
		logger.Info("Destination throughput", fields)
	}
}
