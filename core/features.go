package core

import "time"

// Tier is the user subscription tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// BusinessPriority is the business-context priority class.
type BusinessPriority string

const (
	BusinessLow      BusinessPriority = "low"
	BusinessNormal   BusinessPriority = "normal"
	BusinessHigh     BusinessPriority = "high"
	BusinessCritical BusinessPriority = "critical"
)

// Features are the inputs to prediction. All fields are optional; missing
// fields may be imputed by the prediction client before sending.
//
// Grouping follows the prediction service contract: input characteristics,
// user context, temporal, system state, business context, dependency flags
// and quality scores.
type Features struct {
	// Input characteristics
	InputSizeBytes *int64  `json:"input_size_bytes,omitempty"`
	RecordCount    *int64  `json:"record_count,omitempty"`
	InputFormat    string  `json:"input_format,omitempty"`
	Complexity     *float64 `json:"complexity,omitempty"`

	// User context
	UserID          string `json:"user_id,omitempty"`
	Tenant          string `json:"tenant,omitempty"`
	Tier            Tier   `json:"tier,omitempty"`
	RecentTaskCount *int   `json:"recent_task_count,omitempty"`

	// Temporal
	HourOfDay  *int  `json:"hour_of_day,omitempty"`
	DayOfWeek  *int  `json:"day_of_week,omitempty"`
	IsPeakHour *bool `json:"is_peak_hour,omitempty"`
	IsWeekend  *bool `json:"is_weekend,omitempty"`
	IsHoliday  *bool `json:"is_holiday,omitempty"`

	// System state. Populated only from caller-observed readings; never
	// guessed when unknown.
	QueueDepth      *int64   `json:"queue_depth,omitempty"`
	CPUUsage        *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage     *float64 `json:"memory_usage,omitempty"`
	ActiveConsumers *int     `json:"active_consumers,omitempty"`
	SystemLoad      *float64 `json:"system_load,omitempty"`

	// Business context
	Department       string           `json:"department,omitempty"`
	BusinessPriority BusinessPriority `json:"business_priority,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	IsScheduled      *bool            `json:"is_scheduled,omitempty"`
	Source           string           `json:"source,omitempty"`

	// Dependency flags
	DependsOnExternalAPI *bool `json:"depends_on_external_api,omitempty"`
	DependsOnFile        *bool `json:"depends_on_file,omitempty"`
	DependsOnDatabase    *bool `json:"depends_on_database,omitempty"`

	// Quality
	DataQualityScore *float64 `json:"data_quality_score,omitempty"`
	ComplexityScore  *float64 `json:"complexity_score,omitempty"`
}

// featureField enumerates one optional feature for presence counting. The
// list is a compile-time closed enumeration so unknown fields can never
// drift the estimate.
type featureField struct {
	name    string
	present func(*Features) bool
}

var featureFields = []featureField{
	{"input_size_bytes", func(f *Features) bool { return f.InputSizeBytes != nil }},
	{"record_count", func(f *Features) bool { return f.RecordCount != nil }},
	{"input_format", func(f *Features) bool { return f.InputFormat != "" }},
	{"complexity", func(f *Features) bool { return f.Complexity != nil }},
	{"user_id", func(f *Features) bool { return f.UserID != "" }},
	{"tenant", func(f *Features) bool { return f.Tenant != "" }},
	{"tier", func(f *Features) bool { return f.Tier != "" }},
	{"recent_task_count", func(f *Features) bool { return f.RecentTaskCount != nil }},
	{"hour_of_day", func(f *Features) bool { return f.HourOfDay != nil }},
	{"day_of_week", func(f *Features) bool { return f.DayOfWeek != nil }},
	{"is_peak_hour", func(f *Features) bool { return f.IsPeakHour != nil }},
	{"is_weekend", func(f *Features) bool { return f.IsWeekend != nil }},
	{"is_holiday", func(f *Features) bool { return f.IsHoliday != nil }},
	{"queue_depth", func(f *Features) bool { return f.QueueDepth != nil }},
	{"cpu_usage", func(f *Features) bool { return f.CPUUsage != nil }},
	{"memory_usage", func(f *Features) bool { return f.MemoryUsage != nil }},
	{"active_consumers", func(f *Features) bool { return f.ActiveConsumers != nil }},
	{"system_load", func(f *Features) bool { return f.SystemLoad != nil }},
	{"department", func(f *Features) bool { return f.Department != "" }},
	{"business_priority", func(f *Features) bool { return f.BusinessPriority != "" }},
	{"deadline", func(f *Features) bool { return f.Deadline != nil }},
	{"is_scheduled", func(f *Features) bool { return f.IsScheduled != nil }},
	{"source", func(f *Features) bool { return f.Source != "" }},
	{"depends_on_external_api", func(f *Features) bool { return f.DependsOnExternalAPI != nil }},
	{"depends_on_file", func(f *Features) bool { return f.DependsOnFile != nil }},
	{"depends_on_database", func(f *Features) bool { return f.DependsOnDatabase != nil }},
	{"data_quality_score", func(f *Features) bool { return f.DataQualityScore != nil }},
	{"complexity_score", func(f *Features) bool { return f.ComplexityScore != nil }},
}

// PresentFieldCount returns the number of populated feature fields. Counting
// walks the closed field enumeration, not reflection.
func (f *Features) PresentFieldCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, field := range featureFields {
		if field.present(f) {
			n++
		}
	}
	return n
}

// PresentFieldNames returns the names of populated feature fields, in
// enumeration order.
func (f *Features) PresentFieldNames() []string {
	if f == nil {
		return nil
	}
	var names []string
	for _, field := range featureFields {
		if field.present(f) {
			names = append(names, field.name)
		}
	}
	return names
}

// Clone returns a deep copy of the features.
func (f *Features) Clone() *Features {
	if f == nil {
		return nil
	}
	c := *f
	c.InputSizeBytes = clonePtr(f.InputSizeBytes)
	c.RecordCount = clonePtr(f.RecordCount)
	c.Complexity = clonePtr(f.Complexity)
	c.RecentTaskCount = clonePtr(f.RecentTaskCount)
	c.HourOfDay = clonePtr(f.HourOfDay)
	c.DayOfWeek = clonePtr(f.DayOfWeek)
	c.IsPeakHour = clonePtr(f.IsPeakHour)
	c.IsWeekend = clonePtr(f.IsWeekend)
	c.IsHoliday = clonePtr(f.IsHoliday)
	c.QueueDepth = clonePtr(f.QueueDepth)
	c.CPUUsage = clonePtr(f.CPUUsage)
	c.MemoryUsage = clonePtr(f.MemoryUsage)
	c.ActiveConsumers = clonePtr(f.ActiveConsumers)
	c.SystemLoad = clonePtr(f.SystemLoad)
	c.Deadline = clonePtr(f.Deadline)
	c.IsScheduled = clonePtr(f.IsScheduled)
	c.DependsOnExternalAPI = clonePtr(f.DependsOnExternalAPI)
	c.DependsOnFile = clonePtr(f.DependsOnFile)
	c.DependsOnDatabase = clonePtr(f.DependsOnDatabase)
	c.DataQualityScore = clonePtr(f.DataQualityScore)
	c.ComplexityScore = clonePtr(f.ComplexityScore)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Convenience for populating optional feature
// fields.
func Ptr[T any](v T) *T {
	return &v
}
