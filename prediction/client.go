package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/telemetry"
)

// MaxBatchSize is the largest batch the service accepts per request.
// Larger inputs are split client-side.
const MaxBatchSize = 100

const healthCacheKey = "health"

// ClientConfig configures the prediction client.
type ClientConfig struct {
	// BaseURL of the prediction service, without a trailing slash.
	BaseURL string

	// Timeout bounds each call. Default: 10s.
	Timeout time.Duration

	// HealthWindow is how long a health probe result stays valid, and how
	// stale the last successful call may be before the next predict is
	// gated on a probe. Default: 30s.
	HealthWindow time.Duration

	// Breaker optionally protects calls. A nil breaker executes directly.
	Breaker core.CircuitBreaker

	// Logger is an optional logger for client operations.
	Logger core.Logger

	// Metrics is the metrics handle. Defaults to telemetry.Default().
	Metrics *telemetry.Metrics
}

// Client is the synchronous prediction service client. Safe for concurrent
// use from many publisher invocations.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	healthWindow time.Duration
	breaker      core.CircuitBreaker
	logger       core.Logger
	metrics      *telemetry.Metrics

	healthCache *gocache.Cache

	mu          sync.Mutex
	lastSuccess time.Time
}

// NewClient creates a prediction client. Zero-valued config fields get
// defaults.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.HealthWindow <= 0 {
		config.HealthWindow = 30 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.Default()
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/prediction")
		}
	}

	return &Client{
		baseURL:      config.BaseURL,
		httpClient:   &http.Client{Timeout: config.Timeout},
		healthWindow: config.HealthWindow,
		breaker:      config.Breaker,
		logger:       logger,
		metrics:      config.Metrics,
		healthCache:  gocache.New(config.HealthWindow, 2*config.HealthWindow),
	}
}

// predictRequest is the wire request for /predict.
type predictRequest struct {
	TaskID         string                `json:"task_id"`
	TaskType       core.TaskType         `json:"task_type"`
	ManualPriority int                   `json:"manual_priority"`
	Features       *core.Features        `json:"features,omitempty"`
	RequestedKinds []core.PredictionKind `json:"requested_kinds,omitempty"`
}

// predictResponse is the wire response for /predict.
type predictResponse struct {
	Success     bool              `json:"success"`
	Predictions *core.Predictions `json:"predictions,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type batchRequest struct {
	Tasks []predictRequest `json:"tasks"`
}

type batchItem struct {
	TaskID      string            `json:"task_id"`
	Success     bool              `json:"success"`
	Predictions *core.Predictions `json:"predictions,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

// Predict requests the given prediction kinds for one task. All failure
// modes return an Unavailable result; Predict never returns an error.
func (c *Client) Predict(ctx context.Context, task *core.Task, kinds []core.PredictionKind) Result {
	if !c.gate(ctx) {
		c.record("gated", "predict", time.Duration(0), "")
		return Unavailable("health check negative")
	}

	ctx, span := telemetry.StartSpan(ctx, "ai_get_predictions",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", string(task.Type)),
		),
	)
	defer span.End()

	req := predictRequest{
		TaskID:         task.ID,
		TaskType:       task.Type,
		ManualPriority: task.ManualPriority,
		Features:       task.Features,
		RequestedKinds: kinds,
	}

	start := time.Now()
	var resp predictResponse
	err := c.post(ctx, "/predict", req, &resp)
	elapsed := time.Since(start)

	if err != nil {
		c.record("error", "predict", elapsed, "")
		if c.logger != nil {
			c.logger.WarnWithContext(ctx, "Prediction call failed", map[string]interface{}{
				"task_id": task.ID,
				"error":   err.Error(),
			})
		}
		return Unavailable(err.Error())
	}
	if !resp.Success || resp.Predictions == nil {
		c.record("rejected", "predict", elapsed, "")
		return Unavailable(fmt.Sprintf("service rejected prediction: %s", resp.Error))
	}

	c.markSuccess()
	c.record("success", "predict", elapsed, resp.Predictions.ModelVersion)

	if c.logger != nil {
		c.logger.DebugWithContext(ctx, "Predictions received", map[string]interface{}{
			"task_id":       task.ID,
			"model_version": resp.Predictions.ModelVersion,
			"latency_ms":    elapsed.Milliseconds(),
		})
	}
	return Ok(resp.Predictions)
}

// PredictBatch requests full prediction sets for many tasks. The result
// maps every input task id to its outcome; ids the service did not answer
// map to Unavailable. Inputs above MaxBatchSize are split into multiple
// requests.
func (c *Client) PredictBatch(ctx context.Context, tasks []*core.Task) map[string]Result {
	results := make(map[string]Result, len(tasks))
	for _, task := range tasks {
		results[task.ID] = Unavailable("no response for task")
	}

	if !c.gate(ctx) {
		for id := range results {
			results[id] = Unavailable("health check negative")
		}
		return results
	}

	for start := 0; start < len(tasks); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		c.predictChunk(ctx, tasks[start:end], results)
	}
	return results
}

func (c *Client) predictChunk(ctx context.Context, tasks []*core.Task, results map[string]Result) {
	req := batchRequest{Tasks: make([]predictRequest, 0, len(tasks))}
	for _, task := range tasks {
		req.Tasks = append(req.Tasks, predictRequest{
			TaskID:         task.ID,
			TaskType:       task.Type,
			ManualPriority: task.ManualPriority,
			Features:       task.Features,
			RequestedKinds: core.AllPredictionKinds,
		})
	}

	start := time.Now()
	var resp batchResponse
	err := c.post(ctx, "/predict-batch", req, &resp)
	elapsed := time.Since(start)

	if err != nil {
		c.record("error", "predict_batch", elapsed, "")
		for _, task := range tasks {
			results[task.ID] = Unavailable(err.Error())
		}
		return
	}

	c.markSuccess()
	c.record("success", "predict_batch", elapsed, "")

	for _, item := range resp.Results {
		if _, known := results[item.TaskID]; !known {
			// Unknown ids stay out of the result map.
			continue
		}
		if item.Success && item.Predictions != nil {
			results[item.TaskID] = Ok(item.Predictions)
		} else {
			results[item.TaskID] = Unavailable(fmt.Sprintf("service rejected prediction: %s", item.Error))
		}
	}
}

// Health probes the service liveness endpoint. Results are cached for the
// configured window so the gate stays cheap.
func (c *Client) Health(ctx context.Context) bool {
	if cached, found := c.healthCache.Get(healthCacheKey); found {
		return cached.(bool)
	}

	healthy := c.probeHealth(ctx)
	c.healthCache.Set(healthCacheKey, healthy, gocache.DefaultExpiration)
	return healthy
}

func (c *Client) probeHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// gate decides whether a predict call may proceed. When the last
// successful call is fresh, the service is assumed reachable; otherwise
// the cached health probe answers.
func (c *Client) gate(ctx context.Context) bool {
	c.mu.Lock()
	fresh := !c.lastSuccess.IsZero() && time.Since(c.lastSuccess) < c.healthWindow
	c.mu.Unlock()
	if fresh {
		return true
	}
	return c.Health(ctx)
}

func (c *Client) markSuccess() {
	c.mu.Lock()
	c.lastSuccess = time.Now()
	c.mu.Unlock()
}

// post sends one JSON request. No retries on non-2xx: the caller falls
// back to manual routing instead.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	do := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrPredictionUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: status %d", core.ErrPredictionUnavailable, resp.StatusCode)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(ctx, do)
	}
	return do()
}

func (c *Client) record(status, reqType string, elapsed time.Duration, modelVersion string) {
	backend := modelVersion
	if backend == "" {
		backend = "unknown"
	}
	c.metrics.Predictions.WithLabelValues(backend, reqType, status).Inc()
	if elapsed > 0 {
		c.metrics.PredictionLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
}
