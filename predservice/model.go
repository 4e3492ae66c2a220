package predservice

import (
	"fmt"
	"sync"

	"github.com/routemind/routemind/core"
)

// minTrainingRecords is how many observations the learned model needs
// before it is considered loaded.
const minTrainingRecords = 25

// typeStats are the learned statistics for one task type.
type typeStats struct {
	count        int64
	meanDuration float64
	successes    int64
}

// learnedModel is the statistical tier trained from observed outcomes. It
// refines the fallback's duration and success estimates with per-type
// statistics; rules it has no data for delegate to the fallback.
//
// Incremental statistics updates run on the service's single observer
// goroutine; retrain replaces the statistics from the goroutine that calls
// Service.Retrain. Both take the write lock, so they never interleave, but
// they are two writers. Reads take the read lock.
type learnedModel struct {
	fallback *fallbackPredictor

	mu       sync.RWMutex
	stats    map[core.TaskType]typeStats
	trained  int64
	revision int
}

func newLearnedModel(fallback *fallbackPredictor) *learnedModel {
	return &learnedModel{
		fallback: fallback,
		stats:    make(map[core.TaskType]typeStats),
	}
}

func (m *learnedModel) name() string { return "model" }

func (m *learnedModel) version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("learned-stats-v%d", m.revision)
}

func (m *learnedModel) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained >= minTrainingRecords
}

// observe folds one outcome into the running statistics.
func (m *learnedModel) observe(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats[obs.TaskType]
	s.count++
	s.meanDuration += (float64(obs.ActualDurationMs) - s.meanDuration) / float64(s.count)
	if obs.WasSuccessful {
		s.successes++
	}
	m.stats[obs.TaskType] = s
	m.trained++
}

// retrain rebuilds the statistics from a buffer snapshot and bumps the
// model revision.
func (m *learnedModel) retrain(observations []Observation) {
	stats := make(map[core.TaskType]typeStats)
	for _, obs := range observations {
		s := stats[obs.TaskType]
		s.count++
		s.meanDuration += (float64(obs.ActualDurationMs) - s.meanDuration) / float64(s.count)
		if obs.WasSuccessful {
			s.successes++
		}
		stats[obs.TaskType] = s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
	m.trained = int64(len(observations))
	m.revision++
}

func (m *learnedModel) predict(req PredictRequest) *core.Predictions {
	p := m.fallback.predict(req)
	p.ModelVersion = m.version()

	m.mu.RLock()
	s, ok := m.stats[req.TaskType]
	m.mu.RUnlock()
	if !ok || s.count == 0 {
		return p
	}

	p.PredictedDurationMs = int64(s.meanDuration)
	p.DurationConfidence = confidenceFor(s.count)

	observedSuccess := float64(s.successes) / float64(s.count)
	// Blend the rules estimate with the observed rate, weighted by how
	// much data backs the observation.
	w := confidenceFor(s.count)
	p.SuccessProbability = w*observedSuccess + (1-w)*p.SuccessProbability

	return p
}

func confidenceFor(count int64) float64 {
	switch {
	case count >= 500:
		return 0.95
	case count >= 100:
		return 0.85
	case count >= 25:
		return 0.7
	case count >= 5:
		return 0.55
	default:
		return 0.4
	}
}
