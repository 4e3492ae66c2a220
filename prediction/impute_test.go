package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemind/routemind/core"
)

func TestImputeTemporalFields(t *testing.T) {
	// Tuesday 14:00: peak hour, not weekend.
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	task := &core.Task{ID: "t-1", Type: core.TaskDataAnalysis}

	f := ImputeFeatures(task, now, SystemObservation{})

	require.NotNil(t, f.HourOfDay)
	assert.Equal(t, 14, *f.HourOfDay)
	require.NotNil(t, f.DayOfWeek)
	assert.Equal(t, int(time.Tuesday), *f.DayOfWeek)
	require.NotNil(t, f.IsPeakHour)
	assert.True(t, *f.IsPeakHour)
	require.NotNil(t, f.IsWeekend)
	assert.False(t, *f.IsWeekend)
}

func TestImputeWeekendOffPeak(t *testing.T) {
	// Saturday 22:00.
	now := time.Date(2025, 6, 7, 22, 0, 0, 0, time.UTC)
	task := &core.Task{ID: "t-1", Type: core.TaskDataAnalysis}

	f := ImputeFeatures(task, now, SystemObservation{})

	assert.False(t, *f.IsPeakHour)
	assert.True(t, *f.IsWeekend)
}

func TestImputeBaselineInputSize(t *testing.T) {
	task := &core.Task{ID: "t-1", Type: core.TaskEmailNotification}

	f := ImputeFeatures(task, time.Now(), SystemObservation{})

	require.NotNil(t, f.InputSizeBytes)
	assert.Equal(t, core.BaselineInputSize(core.TaskEmailNotification), *f.InputSizeBytes)
}

func TestImputePrefersParameterInputSize(t *testing.T) {
	task := &core.Task{
		ID:         "t-1",
		Type:       core.TaskEmailNotification,
		Parameters: map[string]interface{}{"input_size": float64(777)},
	}

	f := ImputeFeatures(task, time.Now(), SystemObservation{})

	require.NotNil(t, f.InputSizeBytes)
	assert.Equal(t, int64(777), *f.InputSizeBytes)
}

func TestImputeAnonymousUser(t *testing.T) {
	task := &core.Task{ID: "t-1", Type: core.TaskWebScraping}

	f := ImputeFeatures(task, time.Now(), SystemObservation{})
	assert.Equal(t, "anonymous", f.UserID)
}

func TestImputeUserFromParameters(t *testing.T) {
	task := &core.Task{
		ID:         "t-1",
		Type:       core.TaskWebScraping,
		Parameters: map[string]interface{}{"user_id": "u-9", "tier": "premium"},
	}

	f := ImputeFeatures(task, time.Now(), SystemObservation{})
	assert.Equal(t, "u-9", f.UserID)
	assert.Equal(t, core.TierPremium, f.Tier)
}

func TestImputeNeverGuessesSystemState(t *testing.T) {
	task := &core.Task{ID: "t-1", Type: core.TaskDataExport}

	f := ImputeFeatures(task, time.Now(), SystemObservation{})

	assert.Nil(t, f.SystemLoad)
	assert.Nil(t, f.QueueDepth)
	assert.Nil(t, f.CPUUsage)
}

func TestImputeUsesObservedSystemState(t *testing.T) {
	task := &core.Task{ID: "t-1", Type: core.TaskDataExport}
	obs := SystemObservation{
		QueueDepth: core.Ptr(int64(42)),
		SystemLoad: core.Ptr(0.6),
	}

	f := ImputeFeatures(task, time.Now(), obs)

	require.NotNil(t, f.QueueDepth)
	assert.Equal(t, int64(42), *f.QueueDepth)
	require.NotNil(t, f.SystemLoad)
	assert.Equal(t, 0.6, *f.SystemLoad)
}

func TestImputeDoesNotOverwrite(t *testing.T) {
	task := &core.Task{
		ID:   "t-1",
		Type: core.TaskDataAnalysis,
		Features: &core.Features{
			UserID:         "explicit",
			HourOfDay:      core.Ptr(3),
			InputSizeBytes: core.Ptr(int64(5)),
		},
	}

	f := ImputeFeatures(task, time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC), SystemObservation{})

	assert.Equal(t, "explicit", f.UserID)
	assert.Equal(t, 3, *f.HourOfDay)
	assert.Equal(t, int64(5), *f.InputSizeBytes)
	// Peak-hour derives from the pre-set hour, not the clock.
	assert.False(t, *f.IsPeakHour)
}
