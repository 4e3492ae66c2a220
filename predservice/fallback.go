package predservice

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/routemind/routemind/core"
)

// fallbackVersion tags predictions produced by the rules tier.
const fallbackVersion = "fallback-rules-v1"

// fallbackDurations are the static per-type duration baselines in
// milliseconds, used until learned statistics exist.
var fallbackDurations = map[core.TaskType]int64{
	core.TaskReportGeneration:  45000,
	core.TaskDataAnalysis:      120000,
	core.TaskEmailNotification: 1500,
	core.TaskImageProcessing:   30000,
	core.TaskDataExport:        90000,
	core.TaskWebScraping:       60000,
	core.TaskMLTraining:        600000,
	core.TaskDatabaseMigration: 300000,
}

// fallbackPredictor is the explainable statistical-plus-rules tier. It is
// always ready, and deterministic unless jitter is explicitly enabled.
type fallbackPredictor struct {
	jitter bool
	rng    *rand.Rand
}

func newFallbackPredictor(jitter bool) *fallbackPredictor {
	var rng *rand.Rand
	if jitter {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &fallbackPredictor{jitter: jitter, rng: rng}
}

func (f *fallbackPredictor) name() string    { return "fallback" }
func (f *fallbackPredictor) version() string { return fallbackVersion }
func (f *fallbackPredictor) ready() bool     { return true }

func (f *fallbackPredictor) predict(req PredictRequest) *core.Predictions {
	p := &core.Predictions{
		TaskID:       req.TaskID,
		ModelVersion: fallbackVersion,
	}

	features := req.Features
	if features == nil {
		features = &core.Features{}
	}

	priority, factors, reason := f.priorityRules(req, features)
	p.CalculatedPriority = priority
	p.PriorityScore = float64(priority) / 10
	p.PriorityFactors = factors
	p.PriorityReason = reason

	p.PredictedDurationMs = f.durationEstimate(req.TaskType, features)
	p.DurationConfidence = 0.5

	score, tags := f.anomalyRules(req.TaskType, features)
	p.AnomalyScore = score
	p.AnomalyTags = tags
	p.IsAnomaly = score >= 0.5

	if p.IsAnomaly {
		p.RecommendedDestination = string(core.DestinationAnomaly)
	} else {
		p.RecommendedDestination = string(destinationForPriority(priority))
	}
	p.DestinationConfidence = 0.6

	probability, risks := f.successRules(features)
	p.SuccessProbability = probability
	p.RiskTags = risks
	if probability < 0.5 {
		p.RecommendedAction = "review task inputs before processing"
	} else {
		p.RecommendedAction = "process normally"
	}

	p.Resources = f.resourceEstimate(req.TaskType, features)
	p.OptimizationHints = f.hints(req.TaskType, features)

	return p
}

// priorityRules combines business context, tier and deadline proximity
// into a 0-10 priority with an explainable factor map.
func (f *fallbackPredictor) priorityRules(req PredictRequest, features *core.Features) (int, map[string]float64, string) {
	factors := map[string]float64{}

	base := float64(req.ManualPriority)
	factors["manual_priority"] = base

	switch features.BusinessPriority {
	case core.BusinessCritical:
		factors["business_priority"] = 4
	case core.BusinessHigh:
		factors["business_priority"] = 2
	case core.BusinessLow:
		factors["business_priority"] = -1
	}

	if features.Tier == core.TierEnterprise {
		factors["tier"] = 1
	}

	if features.Deadline != nil {
		until := time.Until(*features.Deadline)
		switch {
		case until <= time.Hour:
			factors["deadline"] = 3
		case until <= 24*time.Hour:
			factors["deadline"] = 1
		}
	}

	total := 0.0
	for _, w := range factors {
		total += w
	}
	priority := int(total)
	if priority < 0 {
		priority = 0
	}
	if priority > 10 {
		priority = 10
	}

	dominant := dominantFactor(factors)
	reason := fmt.Sprintf("rules priority %d, dominant factor %s", priority, dominant)
	return priority, factors, reason
}

func dominantFactor(factors map[string]float64) string {
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestWeight := 0.0
	for _, name := range names {
		if w := factors[name]; w > bestWeight {
			best = name
			bestWeight = w
		}
	}
	if best == "" {
		return "none"
	}
	return best
}

// durationEstimate scales the static baseline by relative input size.
// Deterministic unless the jitter toggle is on.
func (f *fallbackPredictor) durationEstimate(taskType core.TaskType, features *core.Features) int64 {
	base := fallbackDurations[taskType]
	if base == 0 {
		base = 30000
	}

	if features.InputSizeBytes != nil {
		if baseline := core.BaselineInputSize(taskType); baseline > 0 {
			ratio := float64(*features.InputSizeBytes) / float64(baseline)
			if ratio > 4 {
				ratio = 4
			}
			if ratio < 0.25 {
				ratio = 0.25
			}
			base = int64(float64(base) * ratio)
		}
	}

	if f.jitter && f.rng != nil {
		base += int64(f.rng.Float64() * 0.1 * float64(base))
	}
	return base
}

func (f *fallbackPredictor) anomalyRules(taskType core.TaskType, features *core.Features) (float64, []string) {
	score := 0.0
	var tags []string

	if features.InputSizeBytes != nil {
		if baseline := core.BaselineInputSize(taskType); baseline > 0 && *features.InputSizeBytes > 10*baseline {
			score += 0.5
			tags = append(tags, "oversized-input")
		}
	}
	if features.DataQualityScore != nil && *features.DataQualityScore < 0.3 {
		score += 0.3
		tags = append(tags, "low-data-quality")
	}
	if features.RecentTaskCount != nil && *features.RecentTaskCount > 100 {
		score += 0.3
		tags = append(tags, "submission-burst")
	}
	if score > 1 {
		score = 1
	}
	return score, tags
}

func (f *fallbackPredictor) successRules(features *core.Features) (float64, []string) {
	probability := 0.95
	var risks []string

	if features.DependsOnExternalAPI != nil && *features.DependsOnExternalAPI {
		probability -= 0.1
		risks = append(risks, "external-api-dependency")
	}
	if features.DependsOnDatabase != nil && *features.DependsOnDatabase {
		probability -= 0.05
		risks = append(risks, "database-dependency")
	}
	if features.DataQualityScore != nil && *features.DataQualityScore < 0.5 {
		probability -= 0.2
		risks = append(risks, "low-data-quality")
	}
	if features.SystemLoad != nil && *features.SystemLoad > 0.8 {
		probability -= 0.1
		risks = append(risks, "high-system-load")
	}
	if probability < 0.05 {
		probability = 0.05
	}
	return probability, risks
}

func (f *fallbackPredictor) resourceEstimate(taskType core.TaskType, features *core.Features) core.ResourceEstimate {
	est := core.ResourceEstimate{CPUPercent: 10, MemoryMB: 128, NetworkKBps: 64}

	switch taskType {
	case core.TaskMLTraining:
		est = core.ResourceEstimate{CPUPercent: 80, MemoryMB: 4096, NetworkKBps: 256}
	case core.TaskDataAnalysis, core.TaskDatabaseMigration:
		est = core.ResourceEstimate{CPUPercent: 50, MemoryMB: 1024, NetworkKBps: 512}
	case core.TaskImageProcessing:
		est = core.ResourceEstimate{CPUPercent: 60, MemoryMB: 512, NetworkKBps: 128}
	case core.TaskDataExport, core.TaskWebScraping:
		est = core.ResourceEstimate{CPUPercent: 20, MemoryMB: 256, NetworkKBps: 1024}
	}

	if features.RecordCount != nil && *features.RecordCount > 1_000_000 {
		est.MemoryMB *= 2
	}
	return est
}

func (f *fallbackPredictor) hints(taskType core.TaskType, features *core.Features) []string {
	var hints []string
	if features.IsPeakHour != nil && *features.IsPeakHour {
		hints = append(hints, "consider off-peak scheduling")
	}
	if taskType == core.TaskMLTraining {
		hints = append(hints, "long-running: suited to the batch destination")
	}
	return hints
}

// destinationForPriority mirrors the producer-side manual-priority fallback
// table in package routing for priorities 0-10, so both tiers recommend
// consistently.
func destinationForPriority(priority int) core.Destination {
	switch {
	case priority >= 8:
		return core.DestinationCritical
	case priority >= 5:
		return core.DestinationHigh
	case priority >= 2:
		return core.DestinationNormal
	default:
		return core.DestinationLow
	}
}
