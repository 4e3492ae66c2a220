// Package routing decides where a task goes on the broker.
//
// The engine is a pure function from (task, predictions) to a Decision:
// destination, routing key, wire priority, TTL and a reason string. It has
// no I/O and no shared state; equal inputs produce equal outputs across
// runs and processes.
package routing

import (
	"fmt"
	"math"
	"time"

	"github.com/routemind/routemind/core"
)

// batchDurationThreshold is the predicted duration above which a
// low-priority task is considered batch work.
const batchDurationThreshold = 30 * time.Second

// wireScale maps the 0-10 priority range onto the 0-255 wire range.
const wireScale = 25.5

// Decision is the routing outcome for one publish.
type Decision struct {
	// Destination is the queue the message lands on.
	Destination core.Destination

	// Exchange and RoutingKey address the broker publish.
	Exchange   string
	RoutingKey string

	// Priority is the wire priority in [0,255], never above the
	// destination's table maximum.
	Priority uint8

	// TTL is the per-message expiration, from the destination table.
	TTL time.Duration

	// Reason explains the decision. AI-driven decisions start with
	// "ai-optimized:", prediction-less ones with "fallback:".
	Reason string

	// ValidationNote is set when the recommended destination failed
	// catalog validation and the decision fell back to normal.
	ValidationNote string
}

// Decide maps (task, predictions) to a routing decision. A nil predictions
// argument selects fallback routing from manual priority and flags.
func Decide(task *core.Task, preds *core.Predictions) Decision {
	if preds != nil {
		return decideFromPredictions(task, preds)
	}
	return decideFallback(task)
}

func decideFromPredictions(task *core.Task, preds *core.Predictions) Decision {
	dest, known := core.ParseDestination(preds.RecommendedDestination)

	d := buildDecision(dest, wirePriority(preds.CalculatedPriority, dest))
	d.Reason = "ai-optimized: " + priorityReason(preds)
	if !known {
		d.ValidationNote = fmt.Sprintf("unknown recommended destination %q, routed to normal", preds.RecommendedDestination)
	}
	return d
}

func decideFallback(task *core.Task) Decision {
	var dest core.Destination
	switch {
	case anomalyFlagged(task):
		dest = core.DestinationAnomaly
	case BatchSuitable(task):
		dest = core.DestinationBatch
	default:
		dest = destinationForPriority(task.ManualPriority)
	}

	d := buildDecision(dest, dest.Properties().WirePriority)
	d.Reason = "fallback: predictions unavailable"
	return d
}

func buildDecision(dest core.Destination, priority uint8) Decision {
	props := dest.Properties()
	return Decision{
		Destination: dest,
		Exchange:    props.Exchange,
		RoutingKey:  props.RoutingKey,
		Priority:    priority,
		TTL:         props.TTL,
	}
}

// wirePriority scales a 0-10 calculated priority onto the wire range and
// caps it at the destination's table maximum, keeping every published
// message within its destination's priority ceiling.
func wirePriority(calculated int, dest core.Destination) uint8 {
	scaled := math.Round(float64(calculated) * wireScale)
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 255 {
		scaled = 255
	}
	if ceiling := float64(dest.Properties().WirePriority); scaled > ceiling {
		scaled = ceiling
	}
	return uint8(scaled)
}

// destinationForPriority is the manual-priority fallback table.
func destinationForPriority(priority int) core.Destination {
	switch {
	case priority >= 8:
		return core.DestinationCritical
	case priority >= 5:
		return core.DestinationHigh
	case priority >= 2:
		return core.DestinationNormal
	case priority >= 0:
		return core.DestinationLow
	default:
		return core.DestinationBatch
	}
}

// anomalyFlagged reports whether the task carries an anomaly flag usable
// without a fresh prediction: either cached predictions from an earlier
// enrichment, or an explicit anomaly parameter.
func anomalyFlagged(task *core.Task) bool {
	if task.Predictions != nil && task.Predictions.IsAnomaly {
		return true
	}
	if v, ok := task.Parameters["anomaly"].(bool); ok {
		return v
	}
	return false
}

// BatchSuitable reports whether a task qualifies for the batch
// destination. All three conditions must hold: effective priority at most
// 2, predicted duration above the batch threshold, and the scheduled flag
// not explicitly false.
func BatchSuitable(task *core.Task) bool {
	if task.EffectivePriority() > 2 {
		return false
	}
	if task.Predictions == nil {
		return false
	}
	if time.Duration(task.Predictions.PredictedDurationMs)*time.Millisecond <= batchDurationThreshold {
		return false
	}
	params := core.ProjectParams(task.Parameters)
	scheduled := params.Scheduled
	if scheduled == nil && task.Features != nil {
		scheduled = task.Features.IsScheduled
	}
	if scheduled != nil && !*scheduled {
		return false
	}
	return true
}

func priorityReason(preds *core.Predictions) string {
	if preds.PriorityReason != "" {
		return preds.PriorityReason
	}
	return fmt.Sprintf("calculated priority %d", preds.CalculatedPriority)
}
