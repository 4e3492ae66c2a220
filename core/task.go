// Package core provides the task model, destination catalog and shared
// abstractions for the RouteMind pipeline.
//
// This file defines the Task type, the unit of work flowing from the
// submission surface through the publisher, the broker and the consumer
// pool. Tasks carry optional AI augmentation (Features in, Predictions out)
// attached at publish time, and retry state mutated by consumer handlers.
//
// # Distributed Tracing
//
// TraceID and SpanID reflect the publishing span, not the originating
// submitter. They are informational copies for log correlation; the
// authoritative trace context travels in the AMQP traceparent/tracestate
// headers.
package core

import (
	"errors"
	"math"
	"time"
)

// ErrorHistoryLimit bounds the per-task error history. Older entries are
// dropped first.
const ErrorHistoryLimit = 10

// ErrTaskCompleted is returned when a retry is attempted on a task that
// already has CompletedAt set.
var ErrTaskCompleted = errors.New("task already completed")

// TaskType identifies the kind of task. The catalog is closed; unknown
// types are rejected at the submission boundary.
type TaskType string

const (
	TaskReportGeneration  TaskType = "ReportGeneration"
	TaskDataAnalysis      TaskType = "DataAnalysis"
	TaskEmailNotification TaskType = "EmailNotification"
	TaskImageProcessing   TaskType = "ImageProcessing"
	TaskDataExport        TaskType = "DataExport"
	TaskWebScraping       TaskType = "WebScraping"
	TaskMLTraining        TaskType = "MLTraining"
	TaskDatabaseMigration TaskType = "DatabaseMigration"
)

// TaskTypes lists every known task type.
var TaskTypes = []TaskType{
	TaskReportGeneration,
	TaskDataAnalysis,
	TaskEmailNotification,
	TaskImageProcessing,
	TaskDataExport,
	TaskWebScraping,
	TaskMLTraining,
	TaskDatabaseMigration,
}

// baselineInputSize maps each task type to a typical input size in bytes.
// Used by feature imputation when the submitter did not report a size.
var baselineInputSize = map[TaskType]int64{
	TaskReportGeneration:  2 * 1024 * 1024,
	TaskDataAnalysis:      8 * 1024 * 1024,
	TaskEmailNotification: 4 * 1024,
	TaskImageProcessing:   5 * 1024 * 1024,
	TaskDataExport:        16 * 1024 * 1024,
	TaskWebScraping:       512 * 1024,
	TaskMLTraining:        64 * 1024 * 1024,
	TaskDatabaseMigration: 32 * 1024 * 1024,
}

// ValidTaskType reports whether t is part of the closed catalog.
func ValidTaskType(t TaskType) bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// BaselineInputSize returns the typical input size for a task type, or 0
// for unknown types.
func BaselineInputSize(t TaskType) int64 {
	return baselineInputSize[t]
}

// Task is the unit of work.
type Task struct {
	// ID is assigned at creation and never mutated.
	ID string `json:"id"`

	// Type is one of the closed task-type catalog.
	Type TaskType `json:"type"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is stamped by the consumer when a handler begins (nil until then).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is stamped on handler success. Once set, no further retries.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DurationMs is the observed handler duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// ManualPriority is the submitter-assigned priority in [0,10].
	ManualPriority int `json:"manual_priority"`

	// RoutingKey optionally overrides routing; normally left empty and
	// filled from the routing decision.
	RoutingKey string `json:"routing_key,omitempty"`

	// Retry state, mutated by consumer handlers.
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	ErrorHistory []string   `json:"error_history,omitempty"`

	// Trace linkage. Reflects the publishing span; the AMQP headers are
	// authoritative for context propagation.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// Parameters is the untyped submitter-provided map. Kept untyped on the
	// wire; handlers use the typed projection (see params.go).
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// AI augmentation. The task owns its predictions; predictions refer
	// back only by task id.
	Features      *Features    `json:"features,omitempty"`
	Predictions   *Predictions `json:"predictions,omitempty"`
	AIProcessed   bool         `json:"ai_processed"`
	AIProcessedAt *time.Time   `json:"ai_processed_at,omitempty"`
	AIError       string       `json:"ai_error,omitempty"`
}

// EffectivePriority blends AI and manual priority into the 0-10 integer
// used for human reasoning: round(0.7*calculated + 0.3*manual) when
// predictions are present, else the manual priority.
func (t *Task) EffectivePriority() int {
	if t.Predictions == nil {
		return clampPriority(t.ManualPriority)
	}
	blended := 0.7*float64(t.Predictions.CalculatedPriority) + 0.3*float64(t.ManualPriority)
	return clampPriority(int(math.Round(blended)))
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 10 {
		return 10
	}
	return p
}

// AttachPredictions caches a prediction result on the task and stamps
// AIProcessedAt. The back-reference is by id only.
func (t *Task) AttachPredictions(p *Predictions, at time.Time) {
	if p == nil {
		return
	}
	p.TaskID = t.ID
	t.Predictions = p
	t.AIProcessed = true
	t.AIProcessedAt = &at
	t.AIError = ""
}

// MarkStarted stamps StartedAt, overwriting any earlier value: each
// delivery, including a redelivery, restarts the clock.
func (t *Task) MarkStarted(now time.Time) {
	t.StartedAt = &now
}

// MarkCompleted stamps CompletedAt and computes the observed duration.
func (t *Task) MarkCompleted(now time.Time) {
	t.CompletedAt = &now
	if t.StartedAt != nil {
		t.DurationMs = now.Sub(*t.StartedAt).Milliseconds()
	}
}

// NoteError appends an error to the bounded history and sets LastError
// without touching the retry counter. Used for the terminal failure, which
// must not push retry_count past the budget.
func (t *Task) NoteError(msg string) {
	t.LastError = msg
	t.ErrorHistory = append(t.ErrorHistory, msg)
	if len(t.ErrorHistory) > ErrorHistoryLimit {
		t.ErrorHistory = t.ErrorHistory[len(t.ErrorHistory)-ErrorHistoryLimit:]
	}
}

// RecordFailure notes an error and consumes one unit of retry budget.
// Returns ErrTaskCompleted when the task has already completed: once
// CompletedAt is set, no further retries.
func (t *Task) RecordFailure(msg string, now time.Time) error {
	if t.CompletedAt != nil {
		return ErrTaskCompleted
	}
	t.NoteError(msg)
	t.RetryCount++
	t.LastRetryAt = &now
	return nil
}

// CanRetry reports whether the task still has retry budget against the
// given per-destination limit. The total number of handler invocations per
// task is maxRetries+1 (the original attempt plus the retries).
func (t *Task) CanRetry(maxRetries int) bool {
	if t.CompletedAt != nil {
		return false
	}
	return t.RetryCount < maxRetries
}
