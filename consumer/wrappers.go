package consumer

import (
	"context"
	"time"

	"github.com/routemind/routemind/core"
)

// wrapHandler decorates a handler with destination-specific logging and
// policy annotations. Wrappers never change the retry contract: the
// wrapped handler's error is always returned unmodified.
func wrapHandler(dest core.Destination, handler core.TaskHandler, logger core.Logger) core.TaskHandler {
	switch dest {
	case core.DestinationCritical:
		return criticalWrapper(handler, logger)
	case core.DestinationAnomaly:
		return anomalyWrapper(handler, logger)
	case core.DestinationBatch:
		return batchWrapper(handler, logger)
	default:
		return handler
	}
}

// criticalWrapper keeps the hot path lean and flags slow handlers: tasks
// on the critical destination are expected to finish within its 60s TTL.
func criticalWrapper(handler core.TaskHandler, logger core.Logger) core.TaskHandler {
	return func(ctx context.Context, task *core.Task) error {
		start := time.Now()
		err := handler(ctx, task)
		if elapsed := time.Since(start); elapsed > 10*time.Second && logger != nil {
			logger.WarnWithContext(ctx, "Slow handler on critical path", map[string]interface{}{
				"task_id":    task.ID,
				"elapsed_ms": elapsed.Milliseconds(),
			})
		}
		return err
	}
}

// anomalyWrapper surrounds the handler with extra diagnostics so flagged
// tasks leave a usable trail.
func anomalyWrapper(handler core.TaskHandler, logger core.Logger) core.TaskHandler {
	return func(ctx context.Context, task *core.Task) error {
		if logger != nil {
			fields := map[string]interface{}{
				"task_id":   task.ID,
				"task_type": string(task.Type),
			}
			if p := task.Predictions; p != nil {
				fields["anomaly_score"] = p.AnomalyScore
				fields["anomaly_tags"] = p.AnomalyTags
				fields["recommended_action"] = p.RecommendedAction
			}
			logger.WarnWithContext(ctx, "Processing anomalous task", fields)
		}

		err := handler(ctx, task)

		if logger != nil {
			fields := map[string]interface{}{
				"task_id": task.ID,
				"ok":      err == nil,
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			logger.InfoWithContext(ctx, "Anomalous task processed", fields)
		}
		return err
	}
}

// batchWrapper permits long execution: it only annotates, the batch
// destination's TTL and retry policy do the bounding.
func batchWrapper(handler core.TaskHandler, logger core.Logger) core.TaskHandler {
	return func(ctx context.Context, task *core.Task) error {
		start := time.Now()
		if logger != nil {
			logger.DebugWithContext(ctx, "Batch task started", map[string]interface{}{
				"task_id": task.ID,
			})
		}

		err := handler(ctx, task)

		if logger != nil {
			logger.DebugWithContext(ctx, "Batch task finished", map[string]interface{}{
				"task_id":    task.ID,
				"elapsed_ms": time.Since(start).Milliseconds(),
			})
		}
		return err
	}
}
