package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/routemind/routemind/core"
)

func TestDecideUsesRecommendedDestination(t *testing.T) {
	task := &core.Task{ID: "t-1", ManualPriority: 3}
	preds := &core.Predictions{
		CalculatedPriority:     9,
		PriorityReason:         "enterprise deadline pressure",
		RecommendedDestination: "critical",
	}

	d := Decide(task, preds)

	assert.Equal(t, core.DestinationCritical, d.Destination)
	assert.Equal(t, core.PriorityExchange, d.Exchange)
	assert.Equal(t, "priority.critical", d.RoutingKey)
	assert.Equal(t, 60*time.Second, d.TTL)
	assert.Equal(t, "ai-optimized: enterprise deadline pressure", d.Reason)
	assert.Empty(t, d.ValidationNote)
	assert.GreaterOrEqual(t, d.Priority, uint8(200))
}

func TestDecideUnknownRecommendationFallsBackToNormal(t *testing.T) {
	task := &core.Task{ID: "t-1"}
	preds := &core.Predictions{
		CalculatedPriority:     5,
		RecommendedDestination: "hyperspace",
	}

	d := Decide(task, preds)

	assert.Equal(t, core.DestinationNormal, d.Destination)
	assert.NotEmpty(t, d.ValidationNote)
	assert.Contains(t, d.ValidationNote, "hyperspace")
}

func TestWirePriorityCappedAtDestinationCeiling(t *testing.T) {
	task := &core.Task{ID: "t-1"}
	preds := &core.Predictions{
		CalculatedPriority:     10,
		RecommendedDestination: "low",
	}

	d := Decide(task, preds)

	// low's table maximum is 50; the scaled priority must not exceed it.
	assert.Equal(t, core.DestinationLow, d.Destination)
	assert.LessOrEqual(t, d.Priority, core.DestinationLow.Properties().WirePriority)
}

func TestWirePriorityScaling(t *testing.T) {
	task := &core.Task{ID: "t-1"}
	preds := &core.Predictions{
		CalculatedPriority:     9,
		RecommendedDestination: "critical",
	}

	d := Decide(task, preds)
	// 9 on the 0-10 scale lands at round(9*25.5)=230 on the wire.
	assert.Equal(t, uint8(230), d.Priority)
}

func TestFallbackTable(t *testing.T) {
	tests := []struct {
		manual int
		want   core.Destination
	}{
		{10, core.DestinationCritical},
		{8, core.DestinationCritical},
		{7, core.DestinationHigh},
		{5, core.DestinationHigh},
		{4, core.DestinationNormal},
		{2, core.DestinationNormal},
		{1, core.DestinationLow},
		{0, core.DestinationLow},
	}

	for _, tt := range tests {
		task := &core.Task{ID: "t-1", ManualPriority: tt.manual}
		d := Decide(task, nil)
		assert.Equal(t, tt.want, d.Destination, "manual priority %d", tt.manual)
		assert.Equal(t, "fallback: predictions unavailable", d.Reason)
		assert.Equal(t, tt.want.Properties().WirePriority, d.Priority)
		assert.Equal(t, tt.want.Properties().TTL, d.TTL)
	}
}

func TestFallbackAnomalyFlagForcesAnomaly(t *testing.T) {
	task := &core.Task{
		ID:             "t-1",
		ManualPriority: 9,
		Predictions:    &core.Predictions{IsAnomaly: true},
	}

	d := Decide(task, nil)

	assert.Equal(t, core.DestinationAnomaly, d.Destination)
	assert.Equal(t, core.AnomalyExchange, d.Exchange)
	assert.Equal(t, "anomaly.detected", d.RoutingKey)
}

func TestFallbackAnomalyParameter(t *testing.T) {
	task := &core.Task{
		ID:         "t-1",
		Parameters: map[string]interface{}{"anomaly": true},
	}

	d := Decide(task, nil)
	assert.Equal(t, core.DestinationAnomaly, d.Destination)
}

func TestFallbackBatchSuitableForcesBatch(t *testing.T) {
	task := &core.Task{
		ID:             "t-1",
		ManualPriority: 1,
		Predictions:    &core.Predictions{CalculatedPriority: 1, PredictedDurationMs: 60000},
	}

	d := Decide(task, nil)
	assert.Equal(t, core.DestinationBatch, d.Destination)
	assert.Equal(t, "priority.batch", d.RoutingKey)
}

func TestBatchSuitableRequiresAllThreeConditions(t *testing.T) {
	longRun := &core.Predictions{CalculatedPriority: 1, PredictedDurationMs: 60000}

	t.Run("qualifies", func(t *testing.T) {
		task := &core.Task{ID: "t-1", ManualPriority: 1, Predictions: longRun}
		assert.True(t, BatchSuitable(task))
	})

	t.Run("priority too high", func(t *testing.T) {
		task := &core.Task{
			ID:             "t-1",
			ManualPriority: 9,
			Predictions:    &core.Predictions{CalculatedPriority: 9, PredictedDurationMs: 60000},
		}
		assert.False(t, BatchSuitable(task))
	})

	t.Run("duration too short", func(t *testing.T) {
		task := &core.Task{
			ID:             "t-1",
			ManualPriority: 1,
			Predictions:    &core.Predictions{CalculatedPriority: 1, PredictedDurationMs: 5000},
		}
		assert.False(t, BatchSuitable(task))
	})

	t.Run("no predictions", func(t *testing.T) {
		task := &core.Task{ID: "t-1", ManualPriority: 1}
		assert.False(t, BatchSuitable(task))
	})

	t.Run("explicitly unscheduled", func(t *testing.T) {
		task := &core.Task{
			ID:             "t-1",
			ManualPriority: 1,
			Predictions:    longRun,
			Parameters:     map[string]interface{}{"scheduled": false},
		}
		assert.False(t, BatchSuitable(task))
	})

	t.Run("unscheduled via features", func(t *testing.T) {
		task := &core.Task{
			ID:             "t-1",
			ManualPriority: 1,
			Predictions:    longRun,
			Features:       &core.Features{IsScheduled: core.Ptr(false)},
		}
		assert.False(t, BatchSuitable(task))
	})
}

func TestDecideIsPure(t *testing.T) {
	task := &core.Task{
		ID:             "t-1",
		ManualPriority: 6,
		Parameters:     map[string]interface{}{"scheduled": true},
	}
	preds := &core.Predictions{
		CalculatedPriority:     7,
		PriorityReason:         "steady state",
		RecommendedDestination: "high",
	}

	first := Decide(task, preds)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Decide(task, preds))
	}
}

func TestDecideWithPredictionsButEmptyRecommendation(t *testing.T) {
	task := &core.Task{ID: "t-1"}
	preds := &core.Predictions{CalculatedPriority: 4}

	d := Decide(task, preds)
	assert.Equal(t, core.DestinationNormal, d.Destination)
	assert.NotEmpty(t, d.ValidationNote)
}
