package core

// PredictionKind selects which prediction axes a request asks for.
type PredictionKind string

const (
	KindDuration    PredictionKind = "duration"
	KindPriority    PredictionKind = "priority"
	KindDestination PredictionKind = "destination"
	KindAnomaly     PredictionKind = "anomaly"
	KindSuccess     PredictionKind = "success"
	KindResource    PredictionKind = "resource"
)

// AllPredictionKinds is the full six-valued kind set.
var AllPredictionKinds = []PredictionKind{
	KindDuration,
	KindPriority,
	KindDestination,
	KindAnomaly,
	KindSuccess,
	KindResource,
}

// ResourceEstimate holds predicted resource consumption for a task.
type ResourceEstimate struct {
	CPUPercent   float64 `json:"cpu_percent"`
	MemoryMB     float64 `json:"memory_mb"`
	NetworkKBps  float64 `json:"network_kbps"`
}

// Predictions are the outputs of the prediction service for one task.
// A task owns its predictions by value; the back-reference is by task id
// only, never a pointer cycle.
type Predictions struct {
	TaskID string `json:"task_id,omitempty"`

	// Duration
	PredictedDurationMs int64   `json:"predicted_duration_ms"`
	DurationConfidence  float64 `json:"duration_confidence"`

	// Priority
	CalculatedPriority int                `json:"calculated_priority"`
	PriorityScore      float64            `json:"priority_score"`
	PriorityReason     string             `json:"priority_reason,omitempty"`
	PriorityFactors    map[string]float64 `json:"priority_factors,omitempty"`

	// Destination
	RecommendedDestination string  `json:"recommended_destination,omitempty"`
	DestinationConfidence  float64 `json:"destination_confidence"`

	// Anomaly
	IsAnomaly    bool     `json:"is_anomaly"`
	AnomalyScore float64  `json:"anomaly_score"`
	AnomalyTags  []string `json:"anomaly_tags,omitempty"`

	// Success
	SuccessProbability float64  `json:"success_probability"`
	RiskTags           []string `json:"risk_tags,omitempty"`
	RecommendedAction  string   `json:"recommended_action,omitempty"`

	// Resources
	Resources ResourceEstimate `json:"resources"`

	// Meta
	OptimizationHints []string `json:"optimization_hints,omitempty"`
	ModelVersion      string   `json:"model_version,omitempty"`
	PredictionTimeMs  int64    `json:"prediction_time_ms"`
}
