package predservice

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/telemetry"
)

// PredictRequest is the wire request for a prediction.
type PredictRequest struct {
	TaskID         string                `json:"task_id"`
	TaskType       core.TaskType         `json:"task_type"`
	ManualPriority int                   `json:"manual_priority"`
	Features       *core.Features        `json:"features,omitempty"`
	RequestedKinds []core.PredictionKind `json:"requested_kinds,omitempty"`
}

// Statistics summarizes service activity.
type Statistics struct {
	ModelVersion      string  `json:"model_version"`
	ModelReady        bool    `json:"model_ready"`
	PredictionsToday  int64   `json:"predictions_today"`
	AvgProcessingMs   float64 `json:"avg_processing_ms"`
	TrainingBufferLen int     `json:"training_buffer_len"`
}

// ServiceConfig configures the prediction service.
type ServiceConfig struct {
	// BufferCapacity bounds the training buffer. Default: 10000.
	BufferCapacity int

	// Jitter enables non-deterministic noise on fallback duration
	// estimates. Off by default; estimates are deterministic.
	Jitter bool

	// Logger is an optional logger.
	Logger core.Logger

	// Metrics is the metrics handle. Defaults to telemetry.Default().
	Metrics *telemetry.Metrics
}

// Service is the prediction service. Execution is two-tier: the learned
// model serves once it is ready, the explainable fallback otherwise. Every
// prediction carries its model version; callers never branch on it.
//
// Lifecycle is initialize (NewService) → serve (HTTP handlers) → observe
// (training records). Incremental statistics updates run on the single
// observer goroutine; Retrain rebuilds the statistics on the caller's
// goroutine under the model's lock.
type Service struct {
	fallback *fallbackPredictor
	model    *learnedModel
	buffer   *trainingBuffer
	logger   core.Logger
	metrics  *telemetry.Metrics

	observations chan Observation
	closeOnce    sync.Once
	done         chan struct{}

	predictionCount atomic.Int64
	processingNanos atomic.Int64
}

// NewService initializes the service and starts the observer.
func NewService(config ServiceConfig) *Service {
	if config.Metrics == nil {
		config.Metrics = telemetry.Default()
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/predservice")
		}
	}

	fallback := newFallbackPredictor(config.Jitter)
	s := &Service{
		fallback:     fallback,
		model:        newLearnedModel(fallback),
		buffer:       newTrainingBuffer(config.BufferCapacity),
		logger:       logger,
		metrics:      config.Metrics,
		observations: make(chan Observation, 128),
		done:         make(chan struct{}),
	}

	s.metrics.ModelReady.WithLabelValues("fallback").Set(1)
	s.metrics.ModelReady.WithLabelValues("model").Set(0)

	go s.observeLoop()
	return s
}

// Close stops the observer goroutine.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.observations)
	})
	<-s.done
}

// Predict serves one prediction request through the active tier.
func (s *Service) Predict(req PredictRequest) *core.Predictions {
	start := time.Now()

	tier := s.activeTier()
	var preds *core.Predictions
	if tier == "model" {
		preds = s.model.predict(req)
	} else {
		preds = s.fallback.predict(req)
	}

	preds = filterKinds(preds, req.RequestedKinds)

	elapsed := time.Since(start)
	preds.PredictionTimeMs = elapsed.Milliseconds()

	s.predictionCount.Add(1)
	s.processingNanos.Add(elapsed.Nanoseconds())
	s.metrics.Predictions.WithLabelValues(tier, "predict", "success").Inc()
	s.metrics.PredictionLatency.WithLabelValues(tier).Observe(elapsed.Seconds())

	return preds
}

// Observe records one training observation. The buffer append is
// synchronous so a following retrain sees the record; the learned
// statistics update is serialized through the observer goroutine.
func (s *Service) Observe(obs Observation) {
	s.buffer.append(obs)
	select {
	case s.observations <- obs:
	default:
		// The observer is saturated; the buffered record survives, only
		// the incremental statistics update is skipped. The next retrain
		// rebuilds from the buffer.
		if s.logger != nil {
			s.logger.Warn("Statistics update skipped, observer saturated", map[string]interface{}{
				"task_id": obs.TaskID,
			})
		}
	}
}

// Retrain rebuilds the learned model from the buffer when at least
// minRecords observations exist. Reports whether retraining ran.
func (s *Service) Retrain(minRecords int) (int, bool) {
	size := s.buffer.size()
	if size < minRecords {
		return size, false
	}

	s.model.retrain(s.buffer.snapshot())
	s.updateReadiness()

	if s.logger != nil {
		s.logger.Info("Model retrained", map[string]interface{}{
			"observations":  size,
			"model_version": s.model.version(),
		})
	}
	return size, true
}

// Ready reports whether at least the fallback tier can serve. The
// fallback is always ready, so a running service is always ready.
func (s *Service) Ready() bool {
	return s.fallback.ready()
}

// Stats returns current service statistics.
func (s *Service) Stats() Statistics {
	count := s.predictionCount.Load()
	avgMs := 0.0
	if count > 0 {
		avgMs = float64(s.processingNanos.Load()) / float64(count) / float64(time.Millisecond)
	}

	version := s.fallback.version()
	ready := s.model.ready()
	if ready {
		version = s.model.version()
	}

	return Statistics{
		ModelVersion:      version,
		ModelReady:        ready,
		PredictionsToday:  count,
		AvgProcessingMs:   avgMs,
		TrainingBufferLen: s.buffer.size(),
	}
}

func (s *Service) activeTier() string {
	if s.model.ready() {
		return "model"
	}
	return "fallback"
}

func (s *Service) observeLoop() {
	defer close(s.done)
	for obs := range s.observations {
		s.model.observe(obs)
		s.updateReadiness()
	}
}

func (s *Service) updateReadiness() {
	if s.model.ready() {
		s.metrics.ModelReady.WithLabelValues("model").Set(1)
	} else {
		s.metrics.ModelReady.WithLabelValues("model").Set(0)
	}
}

// filterKinds blanks the prediction axes the caller did not request. An
// empty kind set means everything.
func filterKinds(p *core.Predictions, kinds []core.PredictionKind) *core.Predictions {
	if len(kinds) == 0 {
		return p
	}

	requested := make(map[core.PredictionKind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}

	if !requested[core.KindDuration] {
		p.PredictedDurationMs = 0
		p.DurationConfidence = 0
	}
	if !requested[core.KindPriority] {
		p.CalculatedPriority = 0
		p.PriorityScore = 0
		p.PriorityReason = ""
		p.PriorityFactors = nil
	}
	if !requested[core.KindDestination] {
		p.RecommendedDestination = ""
		p.DestinationConfidence = 0
	}
	if !requested[core.KindAnomaly] {
		p.IsAnomaly = false
		p.AnomalyScore = 0
		p.AnomalyTags = nil
	}
	if !requested[core.KindSuccess] {
		p.SuccessProbability = 0
		p.RiskTags = nil
		p.RecommendedAction = ""
	}
	if !requested[core.KindResource] {
		p.Resources = core.ResourceEstimate{}
	}
	return p
}
