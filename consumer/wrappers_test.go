package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routemind/routemind/core"
)

// memoryLogger captures log entries for wrapper assertions.
type memoryLogger struct {
	core.NoOpLogger
	mu       sync.Mutex
	messages []string
}

func (m *memoryLogger) record(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *memoryLogger) Warn(msg string, fields map[string]interface{})  { m.record(msg) }
func (m *memoryLogger) Info(msg string, fields map[string]interface{})  { m.record(msg) }
func (m *memoryLogger) Debug(msg string, fields map[string]interface{}) { m.record(msg) }

func (m *memoryLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record(msg)
}
func (m *memoryLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record(msg)
}
func (m *memoryLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record(msg)
}

func (m *memoryLogger) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func TestWrappersPreserveHandlerError(t *testing.T) {
	sentinel := errors.New("handler says no")
	handler := func(ctx context.Context, task *core.Task) error { return sentinel }
	task := &core.Task{ID: "w-1", Type: core.TaskDataAnalysis}

	for _, dest := range core.Destinations {
		wrapped := wrapHandler(dest, handler, &memoryLogger{})
		err := wrapped(context.Background(), task)
		assert.ErrorIs(t, err, sentinel, "destination %s altered the error", dest)
	}
}

func TestWrappersPreserveSuccess(t *testing.T) {
	handler := func(ctx context.Context, task *core.Task) error { return nil }
	task := &core.Task{ID: "w-2", Type: core.TaskDataAnalysis}

	for _, dest := range core.Destinations {
		wrapped := wrapHandler(dest, handler, nil)
		assert.NoError(t, wrapped(context.Background(), task), "destination %s", dest)
	}
}

func TestAnomalyWrapperLogsDiagnostics(t *testing.T) {
	logger := &memoryLogger{}
	handler := func(ctx context.Context, task *core.Task) error { return nil }
	task := &core.Task{
		ID:   "w-3",
		Type: core.TaskDataAnalysis,
		Predictions: &core.Predictions{
			IsAnomaly:    true,
			AnomalyScore: 0.9,
			AnomalyTags:  []string{"oversized-input"},
		},
	}

	wrapped := wrapHandler(core.DestinationAnomaly, handler, logger)
	assert.NoError(t, wrapped(context.Background(), task))

	messages := logger.recorded()
	assert.Contains(t, messages, "Processing anomalous task")
	assert.Contains(t, messages, "Anomalous task processed")
}

func TestBatchWrapperLogsDuration(t *testing.T) {
	logger := &memoryLogger{}
	handler := func(ctx context.Context, task *core.Task) error { return nil }
	task := &core.Task{ID: "w-4", Type: core.TaskMLTraining}

	wrapped := wrapHandler(core.DestinationBatch, handler, logger)
	assert.NoError(t, wrapped(context.Background(), task))

	messages := logger.recorded()
	assert.Contains(t, messages, "Batch task started")
	assert.Contains(t, messages, "Batch task finished")
}
