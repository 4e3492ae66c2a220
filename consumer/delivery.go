package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/rabbitmq"
	"github.com/routemind/routemind/telemetry"
)

// destinationWorker is the shared state of one destination's worker group.
type destinationWorker struct {
	pool    *Pool
	dest    core.Destination
	policy  core.DestinationPolicy
	channel rabbitmq.Channel
}

// run is the main loop of one worker goroutine. Deliveries are handled one
// at a time per worker; across workers in the same destination, handlers
// overlap arbitrarily.
func (w *destinationWorker) run(ctx context.Context, workerID string, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handleDelivery(ctx, workerID, d)
		}
	}
}

// handleDelivery drives one delivery through the state machine. Exactly
// one of ack or nack reaches the broker for every terminal outcome.
func (w *destinationWorker) handleDelivery(ctx context.Context, workerID string, d amqp.Delivery) {
	// RECEIVED: restore the trace context from the wire headers. The W3C
	// headers are authoritative; the JSON trace fields are informational.
	ctx = telemetry.ExtractAMQP(ctx, d.Headers)
	ctx, span := telemetry.StartSpan(ctx, "consume_priority_task",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", w.dest.QueueName()),
			attribute.String("worker.id", workerID),
		),
	)
	defer span.End()

	// PARSED: an unparseable body is terminal, straight to the DLQ.
	var task core.Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		w.pool.metrics.ParseErrors.WithLabelValues(w.dest.QueueName()).Inc()
		telemetry.RecordSpanError(ctx, fmt.Errorf("%w: %v", core.ErrParseFailure, err))
		if w.pool.logger != nil {
			w.pool.logger.ErrorWithContext(ctx, "Dropping unparseable delivery", map[string]interface{}{
				"destination": string(w.dest),
				"error":       err.Error(),
			})
		}
		_ = d.Nack(false, false)
		return
	}

	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", string(task.Type)),
		attribute.Int("task.retry_count", task.RetryCount),
	)

	now := w.pool.clock.Now()
	if !task.CreatedAt.IsZero() {
		wait := now.Sub(task.CreatedAt)
		w.pool.metrics.QueueWaitTime.WithLabelValues(w.dest.QueueName()).Set(wait.Seconds())
	}

	// IN-FLIGHT
	task.MarkStarted(now)

	handler, ok := w.pool.handlerFor(task.Type)
	if !ok {
		w.fail(ctx, d, &task, now, fmt.Errorf("%w: %s", core.ErrHandlerNotFound, task.Type))
		return
	}

	err := w.invoke(ctx, wrapHandler(w.dest, handler, w.pool.logger), &task)
	finished := w.pool.clock.Now()

	if err == nil {
		w.acknowledge(ctx, d, &task, now, finished)
		return
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Shutdown mid-handler: requeue the delivery as-is. The broker
		// redelivers with the original state, so the interrupted attempt
		// does not consume retry budget.
		w.requeueOnShutdown(ctx, d, &task)
		return
	}

	w.fail(ctx, d, &task, now, err)
}

// invoke runs the handler inside the per-type processing span with panic
// recovery.
func (w *destinationWorker) invoke(ctx context.Context, handler core.TaskHandler, task *core.Task) (err error) {
	ctx, span := telemetry.StartSpan(ctx, fmt.Sprintf("process_task_%s", task.Type))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			telemetry.RecordSpanError(ctx, err)
			if w.pool.logger != nil {
				w.pool.logger.ErrorWithContext(ctx, "Handler panicked", map[string]interface{}{
					"task_id": task.ID,
					"panic":   fmt.Sprintf("%v", r),
					"stack":   string(debug.Stack()),
				})
			}
		}
	}()

	return handler(ctx, task)
}

// acknowledge finishes a successful delivery: ACKED is terminal, frees the
// prefetch slot and triggers the training reporter.
func (w *destinationWorker) acknowledge(ctx context.Context, d amqp.Delivery, task *core.Task, started, finished time.Time) {
	task.MarkCompleted(finished)
	duration := finished.Sub(started)

	if err := d.Ack(false); err != nil {
		telemetry.RecordSpanError(ctx, err)
		if w.pool.logger != nil {
			w.pool.logger.WarnWithContext(ctx, "Failed to ack delivery", map[string]interface{}{
				"task_id": task.ID,
				"error":   err.Error(),
			})
		}
		return
	}

	w.pool.metrics.TasksProcessed.WithLabelValues(string(task.Type), w.dest.QueueName(), "completed").Inc()
	w.pool.metrics.ProcessingDuration.WithLabelValues(string(task.Type)).Observe(duration.Seconds())
	w.pool.stats.record(w.dest, duration)

	w.pool.training.ReportOutcome(ctx, task, w.dest, true)

	if w.pool.logger != nil {
		w.pool.logger.InfoWithContext(ctx, "Task completed", map[string]interface{}{
			"task_id":     task.ID,
			"task_type":   string(task.Type),
			"destination": string(w.dest),
			"duration_ms": duration.Milliseconds(),
		})
	}
}

// fail routes a handler failure into retry or dead-letter. Retries requeue
// the mutated task after the destination's delay; exhaustion nacks without
// requeue so the broker dead-letters the message.
func (w *destinationWorker) fail(ctx context.Context, d amqp.Delivery, task *core.Task, started time.Time, handlerErr error) {
	telemetry.RecordSpanError(ctx, handlerErr)

	if task.CanRetry(w.policy.MaxRetries) {
		_ = task.RecordFailure(handlerErr.Error(), w.pool.clock.Now())
		w.retry(ctx, d, task)
		return
	}

	// The terminal failure is noted without incrementing so retry_count
	// never exceeds the destination's budget.
	task.NoteError(handlerErr.Error())

	// DEAD-LETTERED: terminal. The nack without requeue routes the
	// message through the dead-letter exchange.
	_ = d.Nack(false, false)

	w.pool.metrics.TasksProcessed.WithLabelValues(string(task.Type), w.dest.QueueName(), "dead_lettered").Inc()
	w.pool.stats.record(w.dest, w.pool.clock.Now().Sub(started))

	w.pool.training.ReportOutcome(ctx, task, w.dest, false)

	if w.pool.logger != nil {
		w.pool.logger.ErrorWithContext(ctx, "Task dead-lettered", map[string]interface{}{
			"task_id":     task.ID,
			"task_type":   string(task.Type),
			"destination": string(w.dest),
			"retry_count": task.RetryCount,
			"last_error":  task.LastError,
		})
	}
}

// retry requeues the delivery with updated retry state after the
// destination's delay. The delay is interruptible by shutdown; an
// interrupted or failed republish falls back to a plain broker requeue so
// the message is never lost.
func (w *destinationWorker) retry(ctx context.Context, d amqp.Delivery, task *core.Task) {
	w.pool.metrics.TasksProcessed.WithLabelValues(string(task.Type), w.dest.QueueName(), "retried").Inc()

	if w.pool.logger != nil {
		w.pool.logger.WarnWithContext(ctx, "Task retry scheduled", map[string]interface{}{
			"task_id":     task.ID,
			"destination": string(w.dest),
			"retry_count": task.RetryCount,
			"max_retries": w.policy.MaxRetries,
			"delay":       w.policy.RetryDelay.String(),
		})
	}

	timer := time.NewTimer(w.policy.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	case <-timer.C:
	}

	if err := w.republish(ctx, d, task); err != nil {
		if w.pool.logger != nil {
			w.pool.logger.WarnWithContext(ctx, "Republish failed, requeueing in place", map[string]interface{}{
				"task_id": task.ID,
				"error":   err.Error(),
			})
		}
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// republish sends the mutated task back to its own queue through the
// default exchange, carrying the incremented retry count in both body and
// headers.
func (w *destinationWorker) republish(ctx context.Context, d amqp.Delivery, task *core.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task for retry: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[rabbitmq.HeaderRetryCount] = int32(task.RetryCount)

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Priority:     d.Priority,
		Expiration:   d.Expiration,
		MessageId:    task.ID,
		Timestamp:    w.pool.clock.Now(),
		Headers:      headers,
	}

	return w.channel.PublishWithContext(ctx, "", w.dest.QueueName(), false, false, msg)
}

// requeueOnShutdown hands an interrupted delivery back to the broker.
func (w *destinationWorker) requeueOnShutdown(ctx context.Context, d amqp.Delivery, task *core.Task) {
	_ = d.Nack(false, true)

	if w.pool.logger != nil {
		w.pool.logger.WarnWithContext(ctx, "Delivery requeued on shutdown", map[string]interface{}{
			"task_id":     task.ID,
			"destination": string(w.dest),
		})
	}
}
