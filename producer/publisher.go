// Package producer publishes enriched tasks onto the broker and exposes
// the HTTP submission surface.
//
// The publish path is: start the publishing span, ask the prediction
// client for the full prediction set, let the routing engine decide the
// destination, then publish the serialized task with the wire header
// catalog and W3C trace context. Prediction failures degrade routing to
// the manual-priority fallback but never fail the publish; broker and
// overflow errors surface to the submitter.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/prediction"
	"github.com/routemind/routemind/rabbitmq"
	"github.com/routemind/routemind/routing"
	"github.com/routemind/routemind/telemetry"
)

// Predictor is the prediction client surface the publisher depends on.
type Predictor interface {
	Predict(ctx context.Context, task *core.Task, kinds []core.PredictionKind) prediction.Result
	PredictBatch(ctx context.Context, tasks []*core.Task) map[string]prediction.Result
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Channel publishes messages. Use rabbitmq.NewConfirmChannel so
	// overflow rejections surface.
	Channel rabbitmq.Channel

	// Predictor enriches tasks before routing. A nil predictor routes
	// every task through the fallback table.
	Predictor Predictor

	// Observe optionally supplies system-state readings for feature
	// imputation. Nil leaves those fields absent.
	Observe func() prediction.SystemObservation

	// BatchParallelism bounds concurrent publishes inside PublishBatch.
	// Default: 4.
	BatchParallelism int

	// DefaultMaxRetries stamps tasks that arrive without a retry budget.
	// Default: 3.
	DefaultMaxRetries int

	// Logger is an optional logger.
	Logger core.Logger

	// Metrics is the metrics handle. Defaults to telemetry.Default().
	Metrics *telemetry.Metrics

	// Clock abstracts time for tests. Defaults to the system clock.
	Clock core.Clock
}

// Publisher implements core.TaskPublisher. Safe for concurrent use from
// many submitters.
type Publisher struct {
	channel          rabbitmq.Channel
	predictor        Predictor
	observe          func() prediction.SystemObservation
	batchParallelism int
	defaultRetries   int
	logger           core.Logger
	metrics          *telemetry.Metrics
	clock            core.Clock
}

// NewPublisher creates a publisher. Zero-valued config fields get
// defaults.
func NewPublisher(config PublisherConfig) *Publisher {
	if config.BatchParallelism <= 0 {
		config.BatchParallelism = 4
	}
	if config.DefaultMaxRetries <= 0 {
		config.DefaultMaxRetries = 3
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.Default()
	}
	if config.Clock == nil {
		config.Clock = core.SystemClock{}
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/producer")
		}
	}

	return &Publisher{
		channel:          config.Channel,
		predictor:        config.Predictor,
		observe:          config.Observe,
		batchParallelism: config.BatchParallelism,
		defaultRetries:   config.DefaultMaxRetries,
		logger:           logger,
		metrics:          config.Metrics,
		clock:            config.Clock,
	}
}

// Publish enriches, serializes and publishes one task.
func (p *Publisher) Publish(ctx context.Context, task *core.Task) error {
	ctx, span := telemetry.StartSpan(ctx, "send_ai_optimized_task",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", string(task.Type)),
			attribute.String("messaging.system", "rabbitmq"),
		),
	)
	defer span.End()

	start := p.clock.Now()
	p.prepare(ctx, task)

	result := p.predict(ctx, task)
	decision := p.route(ctx, task, result)

	err := p.publishDecided(ctx, task, decision)
	p.metrics.TaskSendDuration.WithLabelValues(string(task.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		if p.logger != nil {
			p.logger.ErrorWithContext(ctx, "Publish failed", map[string]interface{}{
				"task_id":     task.ID,
				"destination": string(decision.Destination),
				"error":       err.Error(),
			})
		}
		return &core.PipelineError{Op: "publisher.Publish", Kind: "broker", TaskID: task.ID, Err: err}
	}

	p.metrics.TasksSent.WithLabelValues(string(task.Type), decision.Destination.QueueName()).Inc()

	if p.logger != nil {
		p.logger.InfoWithContext(ctx, "Task published", map[string]interface{}{
			"task_id":     task.ID,
			"task_type":   string(task.Type),
			"destination": string(decision.Destination),
			"routing_key": decision.RoutingKey,
			"priority":    decision.Priority,
			"reason":      decision.Reason,
		})
	}
	return nil
}

// PublishBatch batch-predicts first, then publishes with bounded
// parallelism, reusing the same decision and properties logic. Returns the
// number of tasks published successfully.
func (p *Publisher) PublishBatch(ctx context.Context, tasks []*core.Task) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	for _, task := range tasks {
		p.prepare(ctx, task)
	}

	var results map[string]prediction.Result
	if p.predictor != nil {
		results = p.predictor.PredictBatch(ctx, tasks)
	}

	sem := make(chan struct{}, p.batchParallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex
	published := 0
	var firstErr error

	for _, task := range tasks {
		task := task
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var result prediction.Result
			if results != nil {
				result = results[task.ID]
			} else {
				result = prediction.Unavailable("predictor not configured")
			}

			decision := p.route(ctx, task, result)
			err := p.publishDecided(ctx, task, decision)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			published++
			p.metrics.TasksSent.WithLabelValues(string(task.Type), decision.Destination.QueueName()).Inc()
		}()
	}
	wg.Wait()

	if p.logger != nil {
		p.logger.InfoWithContext(ctx, "Batch published", map[string]interface{}{
			"requested": len(tasks),
			"published": published,
		})
	}
	return published, firstErr
}

// prepare stamps identity, defaults and the publishing span's trace
// linkage onto the task, and imputes features.
func (p *Publisher) prepare(ctx context.Context, task *core.Task) {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = p.clock.Now()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = p.defaultRetries
	}

	tc := telemetry.GetTraceContext(ctx)
	task.TraceID = tc.TraceID
	task.SpanID = tc.SpanID

	var obs prediction.SystemObservation
	if p.observe != nil {
		obs = p.observe()
	}
	prediction.ImputeFeatures(task, p.clock.Now(), obs)
}

func (p *Publisher) predict(ctx context.Context, task *core.Task) prediction.Result {
	if p.predictor == nil {
		return prediction.Unavailable("predictor not configured")
	}
	return p.predictor.Predict(ctx, task, core.AllPredictionKinds)
}

// route attaches an available prediction to the task and asks the engine
// for a decision. Unavailable predictions record the reason on the task
// and use fallback routing.
func (p *Publisher) route(ctx context.Context, task *core.Task, result prediction.Result) routing.Decision {
	// Only this call's predictions drive the decision. Predictions cached
	// from an earlier enrichment still inform the fallback path's anomaly
	// and batch flags inside the engine, but never its AI-optimized path.
	var preds *core.Predictions
	if result.Available() {
		task.AttachPredictions(result.Predictions, p.clock.Now())
		preds = task.Predictions
	} else {
		task.AIError = result.Reason
		if p.logger != nil {
			p.logger.DebugWithContext(ctx, "Routing without predictions", map[string]interface{}{
				"task_id": task.ID,
				"reason":  result.Reason,
			})
		}
	}

	decision := routing.Decide(task, preds)
	task.RoutingKey = decision.RoutingKey

	if decision.ValidationNote != "" && p.logger != nil {
		p.logger.WarnWithContext(ctx, "Routing validation note", map[string]interface{}{
			"task_id": task.ID,
			"note":    decision.ValidationNote,
		})
	}
	return decision
}

// publishDecided serializes the task and performs the broker publish with
// the full property set.
func (p *Publisher) publishDecided(ctx context.Context, task *core.Task, decision routing.Decision) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	headers := rabbitmq.BuildHeaders(task, decision.Reason, decision.Destination)
	telemetry.InjectAMQP(ctx, headers)

	priority := decision.Priority
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Priority:     priority,
		Expiration:   strconv.FormatInt(decision.TTL.Milliseconds(), 10),
		MessageId:    task.ID,
		Timestamp:    p.clock.Now(),
		Headers:      headers,
	}

	return p.channel.PublishWithContext(ctx, decision.Exchange, decision.RoutingKey, false, false, msg)
}
