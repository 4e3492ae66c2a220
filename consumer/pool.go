// Package consumer implements the priority-aware consumer pool.
//
// One logical consumer binds to each priority destination with its own
// channel, prefetch window and worker group. Deliveries run a fixed state
// machine (RECEIVED, PARSED, IN-FLIGHT, then exactly one of ACKED,
// REQUEUED or DEAD-LETTERED) and terminal outcomes feed the training
// reporter.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/rabbitmq"
	"github.com/routemind/routemind/telemetry"
)

// ChannelFactory opens one broker channel per logical consumer.
type ChannelFactory func() (rabbitmq.Channel, error)

// PoolConfig configures the consumer pool.
type PoolConfig struct {
	// Channels opens a fresh channel for each destination.
	Channels ChannelFactory

	// Policies overrides the per-destination policy table. Destinations
	// not listed use core.DefaultDestinationPolicies.
	Policies map[core.Destination]core.DestinationPolicy

	// Training receives terminal outcomes. Nil drops them.
	Training core.TrainingSink

	// StatsInterval is the introspection logging period. Default: 10s.
	StatsInterval time.Duration

	// ShutdownTimeout bounds Stop. Default: 30s.
	ShutdownTimeout time.Duration

	// Logger is an optional logger.
	Logger core.Logger

	// Metrics is the metrics handle. Defaults to telemetry.Default().
	Metrics *telemetry.Metrics

	// Clock abstracts time for tests.
	Clock core.Clock
}

// Pool consumes from every priority destination concurrently.
type Pool struct {
	channels ChannelFactory
	policies map[core.Destination]core.DestinationPolicy
	training core.TrainingSink
	logger   core.Logger
	metrics  *telemetry.Metrics
	clock    core.Clock

	statsInterval   time.Duration
	shutdownTimeout time.Duration
	stats           *statsCollector

	handlers     map[core.TaskType]core.TaskHandler
	handlersLock sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a consumer pool. Zero-valued config fields get defaults.
func NewPool(config PoolConfig) *Pool {
	if config.StatsInterval <= 0 {
		config.StatsInterval = 10 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.Default()
	}
	if config.Clock == nil {
		config.Clock = core.SystemClock{}
	}
	if config.Training == nil {
		config.Training = &core.NoOpTrainingSink{}
	}

	policies := core.DefaultDestinationPolicies()
	for dest, policy := range config.Policies {
		policies[dest] = policy
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/consumer")
		}
	}

	return &Pool{
		channels:        config.Channels,
		policies:        policies,
		training:        config.Training,
		logger:          logger,
		metrics:         config.Metrics,
		clock:           config.Clock,
		statsInterval:   config.StatsInterval,
		shutdownTimeout: config.ShutdownTimeout,
		stats:           newStatsCollector(),
		handlers:        make(map[core.TaskType]core.TaskHandler),
	}
}

// RegisterHandler registers a handler for a task type. Must be called
// before Start.
func (p *Pool) RegisterHandler(taskType core.TaskType, handler core.TaskHandler) error {
	if taskType == "" {
		return fmt.Errorf("task type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if p.running.Load() {
		return fmt.Errorf("cannot register handler while pool is running")
	}

	p.handlersLock.Lock()
	defer p.handlersLock.Unlock()
	p.handlers[taskType] = handler
	return nil
}

// SetQueueDepthHook installs the introspection hook used by the periodic
// stats loop; a future scheduler can also use it to adjust concurrency
// from queue depth.
func (p *Pool) SetQueueDepthHook(fn func(core.Destination) (int64, bool)) {
	p.stats.setQueueDepthHook(fn)
}

// Start declares the topology, opens one channel per destination and
// launches the worker groups. Blocks until ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return core.ErrAlreadyStarted
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	setupCh, err := p.channels()
	if err != nil {
		p.running.Store(false)
		cancel()
		return fmt.Errorf("failed to open setup channel: %w", err)
	}
	if err := rabbitmq.DeclareTopology(setupCh); err != nil {
		p.running.Store(false)
		cancel()
		_ = setupCh.Close()
		return fmt.Errorf("failed to declare topology: %w", err)
	}
	_ = setupCh.Close()

	for _, dest := range core.Destinations {
		if err := p.startDestination(poolCtx, dest); err != nil {
			cancel()
			p.wg.Wait()
			p.running.Store(false)
			return err
		}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.stats.run(poolCtx, p.statsInterval, p.logger)
	}()

	if p.logger != nil {
		p.logger.Info("Consumer pool started", map[string]interface{}{
			"destinations": len(core.Destinations),
		})
	}

	p.wg.Wait()
	p.running.Store(false)
	return nil
}

// Stop gracefully stops the pool. Workers finish their current delivery;
// retry delays are interrupted.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.shutdownTimeout):
		return fmt.Errorf("%w: workers still draining", core.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startDestination opens the destination's channel, applies its prefetch
// window and launches its worker group.
func (p *Pool) startDestination(ctx context.Context, dest core.Destination) error {
	policy := p.policies[dest]

	ch, err := p.channels()
	if err != nil {
		return fmt.Errorf("failed to open channel for %s: %w", dest, err)
	}
	if err := ch.Qos(policy.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to set prefetch for %s: %w", dest, err)
	}

	deliveries, err := ch.Consume(dest.QueueName(), "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to consume from %s: %w", dest, err)
	}

	worker := &destinationWorker{
		pool:    p,
		dest:    dest,
		policy:  policy,
		channel: ch,
	}

	for i := 0; i < policy.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", dest, i+1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			worker.run(ctx, workerID, deliveries)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		<-ctx.Done()
		_ = ch.Close()
	}()

	if p.logger != nil {
		p.logger.Info("Destination consumer started", map[string]interface{}{
			"destination": string(dest),
			"concurrency": policy.Concurrency,
			"prefetch":    policy.Prefetch,
			"max_retries": policy.MaxRetries,
			"retry_delay": policy.RetryDelay.String(),
		})
	}
	return nil
}

func (p *Pool) handlerFor(taskType core.TaskType) (core.TaskHandler, bool) {
	p.handlersLock.RLock()
	defer p.handlersLock.RUnlock()
	handler, ok := p.handlers[taskType]
	return handler, ok
}
