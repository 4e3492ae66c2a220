// Package predservice implements the prediction service: a two-tier
// prediction engine (a learned model when ready, an explainable
// statistical-plus-rules fallback otherwise), a bounded in-memory training
// buffer, and the HTTP API the pipeline's clients consume.
package predservice

import (
	"sync"
	"time"

	"github.com/routemind/routemind/core"
)

// Observation is one recorded task outcome used for retraining.
type Observation struct {
	TaskID           string         `json:"task_id"`
	TaskType         core.TaskType  `json:"task_type"`
	Features         *core.Features `json:"features,omitempty"`
	ActualDurationMs int64          `json:"actual_duration_ms"`
	ActualPriority   int            `json:"actual_priority"`
	WasSuccessful    bool           `json:"was_successful"`
	QueueName        string         `json:"queue_name"`
	CreatedAt        time.Time      `json:"created_at"`
	ProcessedAt      time.Time      `json:"processed_at"`
}

// trainingBuffer is the bounded, mutex-guarded observation store. When
// full, the oldest observations fall off.
type trainingBuffer struct {
	mu       sync.Mutex
	capacity int
	records  []Observation
}

func newTrainingBuffer(capacity int) *trainingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &trainingBuffer{capacity: capacity}
}

func (b *trainingBuffer) append(obs Observation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, obs)
	if len(b.records) > b.capacity {
		b.records = b.records[len(b.records)-b.capacity:]
	}
}

func (b *trainingBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// snapshot copies the current buffer contents for retraining.
func (b *trainingBuffer) snapshot() []Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Observation, len(b.records))
	copy(out, b.records)
	return out
}
