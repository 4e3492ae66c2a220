// Package prediction implements the synchronous client for the prediction
// service: single and batch predictions, health probing with a cached
// gate, and deterministic feature pre-population.
//
// The client never returns an error from Predict. Every failure mode
// (timeout, non-2xx status, unparseable body, negative health check, open
// circuit) collapses into an Unavailable result; callers branch on the
// discriminant and fall back to manual routing.
package prediction

import "github.com/routemind/routemind/core"

// Result is the outcome of a prediction call: either a prediction set or
// an unavailability reason. Exactly one side is populated.
type Result struct {
	// Predictions is non-nil when the call succeeded.
	Predictions *core.Predictions

	// Reason describes why predictions are unavailable.
	Reason string
}

// Ok wraps a successful prediction set.
func Ok(p *core.Predictions) Result {
	return Result{Predictions: p}
}

// Unavailable marks a failed prediction with its reason.
func Unavailable(reason string) Result {
	return Result{Reason: reason}
}

// Available reports whether the result carries predictions.
func (r Result) Available() bool {
	return r.Predictions != nil
}
