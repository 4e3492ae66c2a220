package core

import (
	"context"
	"time"
)

// Logger interface - minimal logging interface
type Logger interface {
	// Basic logging methods
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	// Context-aware methods for distributed tracing and request correlation
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with component context support.
// This allows different parts of the pipeline to have their own component
// identifier while sharing the same base configuration.
//
// Component naming convention:
//   - "pipeline/producer"   - publisher and submission surface
//   - "pipeline/consumer"   - consumer pool and handlers
//   - "pipeline/prediction" - prediction client
//   - "pipeline/training"   - training reporter
//   - "pipeline/broker"     - broker connection and topology
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// CircuitBreaker provides circuit breaker functionality for fault tolerance.
// Implementations should protect against cascading failures by temporarily
// blocking requests when a threshold of failures is reached.
type CircuitBreaker interface {
	// Execute runs the provided function with circuit breaker protection.
	// If the circuit is open, it returns an error immediately without
	// invoking fn.
	Execute(ctx context.Context, fn func() error) error

	// GetState returns the current circuit breaker state as a string.
	// Possible values: "closed", "open", "half-open"
	GetState() string
}

// TaskHandler processes one delivery of a task. The context carries the
// consumer span and is cancelled on worker shutdown; long computations must
// observe it. Returning an error subjects the delivery to the destination's
// retry budget.
type TaskHandler func(ctx context.Context, task *Task) error

// TaskPublisher publishes enriched tasks onto the broker. Implemented by
// the producer package; consumers of the interface include the HTTP
// submission surface and the autotask supervisor.
type TaskPublisher interface {
	// Publish enriches, serializes and publishes one task. Broker and
	// overflow errors surface to the caller; prediction failures degrade
	// routing but never fail the publish.
	Publish(ctx context.Context, task *Task) error

	// PublishBatch publishes many tasks, batch-predicting first. Returns
	// the number successfully published.
	PublishBatch(ctx context.Context, tasks []*Task) (int, error)
}

// TrainingSink receives observed task outcomes for model improvement.
// Transport is best-effort: implementations log and drop failures.
type TrainingSink interface {
	ReportOutcome(ctx context.Context, task *Task, destination Destination, successful bool)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTrainingSink drops all outcomes.
type NoOpTrainingSink struct{}

func (n *NoOpTrainingSink) ReportOutcome(ctx context.Context, task *Task, destination Destination, successful bool) {
}
