package predservice

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/telemetry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(ServiceConfig{Metrics: telemetry.NewMetrics()})
	t.Cleanup(s.Close)
	return s
}

func TestPredictWithEmptyFeatures(t *testing.T) {
	s := newTestService(t)

	preds := s.Predict(PredictRequest{
		TaskID:   "p-1",
		TaskType: core.TaskEmailNotification,
	})

	require.NotNil(t, preds)
	assert.Equal(t, "p-1", preds.TaskID)
	assert.NotEmpty(t, preds.ModelVersion)
	assert.NotEmpty(t, preds.RecommendedDestination)
	assert.Greater(t, preds.PredictedDurationMs, int64(0))
}

func TestPredictIsDeterministicWithoutJitter(t *testing.T) {
	s := newTestService(t)
	req := PredictRequest{
		TaskID:         "p-2",
		TaskType:       core.TaskReportGeneration,
		ManualPriority: 5,
		Features: &core.Features{
			Tier:             core.TierEnterprise,
			BusinessPriority: core.BusinessHigh,
			InputSizeBytes:   core.Ptr(int64(4 * 1024 * 1024)),
		},
	}

	first := s.Predict(req)
	for i := 0; i < 10; i++ {
		next := s.Predict(req)
		assert.Equal(t, first.PredictedDurationMs, next.PredictedDurationMs)
		assert.Equal(t, first.CalculatedPriority, next.CalculatedPriority)
		assert.Equal(t, first.RecommendedDestination, next.RecommendedDestination)
	}
}

func TestPredictHonorsRequestedKinds(t *testing.T) {
	s := newTestService(t)

	preds := s.Predict(PredictRequest{
		TaskID:         "p-3",
		TaskType:       core.TaskDataAnalysis,
		ManualPriority: 7,
		RequestedKinds: []core.PredictionKind{core.KindPriority},
	})

	assert.NotZero(t, preds.CalculatedPriority)
	assert.Zero(t, preds.PredictedDurationMs)
	assert.Empty(t, preds.RecommendedDestination)
	assert.Zero(t, preds.SuccessProbability)
	assert.Zero(t, preds.Resources.CPUPercent)
}

func TestObserveGrowsBuffer(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 5; i++ {
		s.Observe(Observation{
			TaskID:           fmt.Sprintf("o-%d", i),
			TaskType:         core.TaskEmailNotification,
			ActualDurationMs: 1000,
			WasSuccessful:    true,
		})
	}

	assert.Equal(t, 5, s.buffer.size())
}

func TestRetrainBelowMinimumRefuses(t *testing.T) {
	s := newTestService(t)
	s.Observe(Observation{TaskID: "o-1", TaskType: core.TaskEmailNotification})

	size, ok := s.Retrain(10)
	assert.False(t, ok)
	assert.Equal(t, 1, size)
}

func TestRetrainAtMinimumRuns(t *testing.T) {
	s := newTestService(t)
	s.Observe(Observation{
		TaskID:           "o-1",
		TaskType:         core.TaskEmailNotification,
		ActualDurationMs: 1800,
		WasSuccessful:    true,
	})

	size, ok := s.Retrain(1)
	assert.True(t, ok)
	assert.Equal(t, 1, size)
}

func TestModelBecomesReadyAfterEnoughObservations(t *testing.T) {
	s := newTestService(t)
	assert.Equal(t, "fallback", s.activeTier())

	for i := 0; i < minTrainingRecords; i++ {
		s.Observe(Observation{
			TaskID:           fmt.Sprintf("o-%d", i),
			TaskType:         core.TaskEmailNotification,
			ActualDurationMs: 2000,
			WasSuccessful:    true,
		})
	}

	require.Eventually(t, func() bool {
		return s.model.ready()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "model", s.activeTier())

	// The learned tier serves observed durations for known types.
	preds := s.Predict(PredictRequest{TaskID: "p-4", TaskType: core.TaskEmailNotification})
	assert.Equal(t, int64(2000), preds.PredictedDurationMs)
	assert.Contains(t, preds.ModelVersion, "learned-stats")
}

func TestStats(t *testing.T) {
	s := newTestService(t)
	s.Predict(PredictRequest{TaskID: "p-5", TaskType: core.TaskWebScraping})

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.PredictionsToday)
	assert.False(t, stats.ModelReady)
	assert.Equal(t, fallbackVersion, stats.ModelVersion)
}

func TestBufferEvictsOldest(t *testing.T) {
	b := newTrainingBuffer(3)
	for i := 0; i < 5; i++ {
		b.append(Observation{TaskID: fmt.Sprintf("o-%d", i)})
	}

	assert.Equal(t, 3, b.size())
	snap := b.snapshot()
	assert.Equal(t, "o-2", snap[0].TaskID)
	assert.Equal(t, "o-4", snap[2].TaskID)
}
