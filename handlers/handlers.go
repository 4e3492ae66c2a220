// Package handlers provides the built-in task handlers the consumer
// binary registers. Each handler simulates the work profile of its task
// type; real deployments replace these with business logic.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/routemind/routemind/core"
)

// workProfiles are the simulated execution times per task type.
var workProfiles = map[core.TaskType]time.Duration{
	core.TaskReportGeneration:  800 * time.Millisecond,
	core.TaskDataAnalysis:      1500 * time.Millisecond,
	core.TaskEmailNotification: 50 * time.Millisecond,
	core.TaskImageProcessing:   600 * time.Millisecond,
	core.TaskDataExport:        1200 * time.Millisecond,
	core.TaskWebScraping:       900 * time.Millisecond,
	core.TaskMLTraining:        3 * time.Second,
	core.TaskDatabaseMigration: 2 * time.Second,
}

// All returns a handler for every task type in the catalog.
func All(logger core.Logger) map[core.TaskType]core.TaskHandler {
	out := make(map[core.TaskType]core.TaskHandler, len(core.TaskTypes))
	for _, taskType := range core.TaskTypes {
		out[taskType] = Simulated(taskType, logger)
	}
	return out
}

// Simulated returns a handler that waits out the task type's work profile
// on a timer. The wait observes context cancellation so shutdown interrupts
// long work.
func Simulated(taskType core.TaskType, logger core.Logger) core.TaskHandler {
	work := workProfiles[taskType]
	if work == 0 {
		work = 500 * time.Millisecond
	}

	return func(ctx context.Context, task *core.Task) error {
		params := core.ProjectParams(task.Parameters)

		if logger != nil {
			logger.DebugWithContext(ctx, "Handler running", map[string]interface{}{
				"task_id":   task.ID,
				"task_type": string(taskType),
				"user_id":   params.UserID,
			})
		}

		timer := time.NewTimer(work)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("handler interrupted: %w", ctx.Err())
		case <-timer.C:
		}

		// A fail parameter drives retry and dead-letter paths in demos
		// and tests.
		if fail, ok := task.Parameters["fail"].(bool); ok && fail {
			return fmt.Errorf("task %s failed by request", task.ID)
		}
		return nil
	}
}
