package prediction

import (
	"time"

	"github.com/routemind/routemind/core"
)

// anonymousUserID is the placeholder for submissions without a user.
const anonymousUserID = "anonymous"

// peak hours, local time. Mirrors the service's notion of business load.
const (
	peakStartHour = 9
	peakEndHour   = 17
)

// SystemObservation carries caller-observed system state. Fields left nil
// stay absent from the features: unknown load is never guessed.
type SystemObservation struct {
	QueueDepth      *int64
	CPUUsage        *float64
	MemoryUsage     *float64
	ActiveConsumers *int
	SystemLoad      *float64
}

// ImputeFeatures fills missing feature fields deterministically before a
// prediction request: temporal fields from the clock, the task-type
// baseline input size, and the anonymous user placeholder. Already-present
// fields are never overwritten. Returns the features that will be sent;
// the task's own features are updated in place when present, or created.
func ImputeFeatures(task *core.Task, now time.Time, obs SystemObservation) *core.Features {
	f := task.Features
	if f == nil {
		f = &core.Features{}
		task.Features = f
	}

	params := core.ProjectParams(task.Parameters)

	if f.HourOfDay == nil {
		f.HourOfDay = core.Ptr(now.Hour())
	}
	if f.DayOfWeek == nil {
		f.DayOfWeek = core.Ptr(int(now.Weekday()))
	}
	if f.IsPeakHour == nil {
		hour := *f.HourOfDay
		f.IsPeakHour = core.Ptr(hour >= peakStartHour && hour < peakEndHour)
	}
	if f.IsWeekend == nil {
		wd := time.Weekday(*f.DayOfWeek)
		f.IsWeekend = core.Ptr(wd == time.Saturday || wd == time.Sunday)
	}

	if f.InputSizeBytes == nil {
		if params.InputSize != nil {
			f.InputSizeBytes = params.InputSize
		} else if baseline := core.BaselineInputSize(task.Type); baseline > 0 {
			f.InputSizeBytes = core.Ptr(baseline)
		}
	}
	if f.RecordCount == nil && params.RecordCount != nil {
		f.RecordCount = params.RecordCount
	}
	if f.InputFormat == "" {
		f.InputFormat = params.InputFormat
	}

	if f.UserID == "" {
		if params.UserID != "" {
			f.UserID = params.UserID
		} else {
			f.UserID = anonymousUserID
		}
	}
	if f.Tenant == "" {
		f.Tenant = params.Tenant
	}
	if f.Tier == "" {
		f.Tier = params.Tier
	}

	if f.Department == "" {
		f.Department = params.Department
	}
	if f.Source == "" {
		f.Source = params.Source
	}
	if f.Deadline == nil {
		f.Deadline = params.Deadline
	}
	if f.IsScheduled == nil {
		f.IsScheduled = params.Scheduled
	}

	// System state comes only from observed readings.
	if f.QueueDepth == nil {
		f.QueueDepth = obs.QueueDepth
	}
	if f.CPUUsage == nil {
		f.CPUUsage = obs.CPUUsage
	}
	if f.MemoryUsage == nil {
		f.MemoryUsage = obs.MemoryUsage
	}
	if f.ActiveConsumers == nil {
		f.ActiveConsumers = obs.ActiveConsumers
	}
	if f.SystemLoad == nil {
		f.SystemLoad = obs.SystemLoad
	}

	return f
}
