// Package training reports observed task outcomes to the prediction
// service for model improvement.
//
// Reporting is best-effort by contract: the ack path never blocks on the
// training hop. Outcomes enter a bounded in-process queue; a single
// dispatcher posts them and logs-and-drops on any failure.
package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/routemind/routemind/core"
)

// Record is one observation posted to the training endpoint.
type Record struct {
	TaskID           string         `json:"task_id"`
	TaskType         core.TaskType  `json:"task_type"`
	Features         *core.Features `json:"features,omitempty"`
	ActualDurationMs int64          `json:"actual_duration_ms"`
	ActualPriority   int            `json:"actual_priority"`
	WasSuccessful    bool           `json:"was_successful"`
	QueueName        string         `json:"queue_name"`
	CreatedAt        time.Time      `json:"created_at"`
	ProcessedAt      time.Time      `json:"processed_at"`
}

// ReporterConfig configures the training reporter.
type ReporterConfig struct {
	// BaseURL of the prediction service, without a trailing slash.
	BaseURL string

	// Timeout bounds each POST. Default: 5s.
	Timeout time.Duration

	// QueueSize bounds the in-process dispatch queue. Outcomes beyond the
	// bound are dropped with a log line. Default: 256.
	QueueSize int

	// ReportFailures also reports dead-lettered outcomes with
	// was_successful=false.
	ReportFailures bool

	// Logger is an optional logger.
	Logger core.Logger
}

// Reporter implements core.TrainingSink.
type Reporter struct {
	baseURL        string
	httpClient     *http.Client
	reportFailures bool
	logger         core.Logger

	queue chan Record

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewReporter creates and starts a training reporter. Call Close to drain
// and stop the dispatcher.
func NewReporter(config ReporterConfig) *Reporter {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/training")
		}
	}

	r := &Reporter{
		baseURL:        config.BaseURL,
		httpClient:     &http.Client{Timeout: config.Timeout},
		reportFailures: config.ReportFailures,
		logger:         logger,
		queue:          make(chan Record, config.QueueSize),
		stopped:        make(chan struct{}),
		done:           make(chan struct{}),
	}

	go r.dispatch()
	return r
}

// ReportOutcome queues one observation. Dead-lettered outcomes are queued
// only when failure reporting is enabled. Never blocks: a full queue drops
// the record.
func (r *Reporter) ReportOutcome(ctx context.Context, task *core.Task, destination core.Destination, successful bool) {
	if !successful && !r.reportFailures {
		return
	}

	record := Record{
		TaskID:           task.ID,
		TaskType:         task.Type,
		Features:         task.Features,
		ActualDurationMs: task.DurationMs,
		ActualPriority:   task.EffectivePriority(),
		WasSuccessful:    successful,
		QueueName:        destination.QueueName(),
		CreatedAt:        task.CreatedAt,
	}
	if task.CompletedAt != nil {
		record.ProcessedAt = *task.CompletedAt
	}

	select {
	case <-r.stopped:
		return
	default:
	}

	select {
	case r.queue <- record:
	default:
		if r.logger != nil {
			r.logger.WarnWithContext(ctx, "Training queue full, dropping outcome", map[string]interface{}{
				"task_id": task.ID,
			})
		}
	}
}

// Close stops accepting outcomes and waits for the dispatcher to drain
// what was already queued.
func (r *Reporter) Close() {
	r.stopOnce.Do(func() {
		close(r.stopped)
	})
	<-r.done
}

func (r *Reporter) dispatch() {
	defer close(r.done)
	for {
		select {
		case record := <-r.queue:
			r.post(record)
		case <-r.stopped:
			for {
				select {
				case record := <-r.queue:
					r.post(record)
				default:
					return
				}
			}
		}
	}
}

// post sends one record. Failures are logged and dropped; the core data
// path does not depend on this succeeding.
func (r *Reporter) post(record Record) {
	body, err := json.Marshal(record)
	if err != nil {
		r.logDrop(record, err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, r.baseURL+"/training/record", bytes.NewReader(body))
	if err != nil {
		r.logDrop(record, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logDrop(record, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logDrop(record, fmt.Errorf("status %d", resp.StatusCode))
		return
	}

	if r.logger != nil {
		r.logger.Debug("Training outcome reported", map[string]interface{}{
			"task_id":    record.TaskID,
			"successful": record.WasSuccessful,
		})
	}
}

func (r *Reporter) logDrop(record Record, err error) {
	if r.logger != nil {
		r.logger.Warn("Training report dropped", map[string]interface{}{
			"task_id": record.TaskID,
			"error":   err.Error(),
		})
	}
}
