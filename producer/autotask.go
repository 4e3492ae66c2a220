package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/routemind/routemind/core"
)

// Supervisor owns the auto-send loop that generates demo tasks at a fixed
// interval. State lives on the value: a running flag, the cancellation
// function and a completion channel. The HTTP surface holds a handle to it.
type Supervisor struct {
	publisher core.TaskPublisher
	logger    core.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	sent    atomic.Int64
	counter atomic.Int64
}

// NewSupervisor creates an auto-task supervisor.
func NewSupervisor(publisher core.TaskPublisher, logger core.Logger) *Supervisor {
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/producer")
		}
	}
	return &Supervisor{
		publisher: publisher,
		logger:    logger,
	}
}

// Start launches the generation loop. Returns core.ErrAlreadyStarted when
// the loop is running.
func (s *Supervisor) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", core.ErrInvalidConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return core.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx, interval)

	if s.logger != nil {
		s.logger.Info("AutoTask supervisor started", map[string]interface{}{
			"interval": interval.String(),
		})
	}
	return nil
}

// Stop cancels the loop and waits for it to drain. Returns
// core.ErrNotRunning when the loop is stopped.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return core.ErrNotRunning
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("AutoTask supervisor stopped", map[string]interface{}{
			"tasks_sent": s.sent.Load(),
		})
	}
	return nil
}

// Running reports whether the loop is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Sent returns the number of tasks generated so far.
func (s *Supervisor) Sent() int64 {
	return s.sent.Load()
}

func (s *Supervisor) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task := s.generate()
			if err := s.publisher.Publish(ctx, task); err != nil {
				if s.logger != nil {
					s.logger.Warn("AutoTask publish failed", map[string]interface{}{
						"task_id": task.ID,
						"error":   err.Error(),
					})
				}
				continue
			}
			s.sent.Add(1)
		}
	}
}

// generate produces the next demo task, cycling through the task-type
// catalog with a rolling manual priority.
func (s *Supervisor) generate() *core.Task {
	n := s.counter.Add(1)
	taskType := core.TaskTypes[int(n)%len(core.TaskTypes)]

	return &core.Task{
		ID:             uuid.NewString(),
		Type:           taskType,
		Title:          fmt.Sprintf("auto task %d", n),
		Description:    "generated by the autotask supervisor",
		CreatedAt:      time.Now(),
		ManualPriority: int(n % 11),
		Parameters: map[string]interface{}{
			"source": "autotask",
		},
	}
}
