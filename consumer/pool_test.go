package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/rabbitmq"
	"github.com/routemind/routemind/telemetry"
)

// fakeBroker hands out channels whose Consume taps per-queue delivery
// streams, so tests can feed specific destinations.
type fakeBroker struct {
	mu      sync.Mutex
	queues  map[string]chan amqp.Delivery
	opened  int
	consume map[string]bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		queues:  make(map[string]chan amqp.Delivery),
		consume: make(map[string]bool),
	}
}

func (b *fakeBroker) queue(name string) chan amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = make(chan amqp.Delivery, 16)
	}
	return b.queues[name]
}

func (b *fakeBroker) factory() ChannelFactory {
	return func() (rabbitmq.Channel, error) {
		b.mu.Lock()
		b.opened++
		b.mu.Unlock()
		return &brokerChannel{broker: b}, nil
	}
}

type brokerChannel struct {
	broker *fakeBroker
	fakeWorkerChannel
}

func (c *brokerChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.broker.mu.Lock()
	c.broker.consume[queue] = true
	c.broker.mu.Unlock()
	return c.broker.queue(queue), nil
}

func TestPoolProcessesDeliveriesAcrossDestinations(t *testing.T) {
	broker := newFakeBroker()

	var handled sync.Map
	sink := &recordingSink{}
	pool := NewPool(PoolConfig{
		Channels: broker.factory(),
		Training: sink,
		Metrics:  telemetry.NewMetrics(),
	})
	for _, taskType := range core.TaskTypes {
		taskType := taskType
		require.NoError(t, pool.RegisterHandler(taskType, func(ctx context.Context, task *core.Task) error {
			handled.Store(task.ID, true)
			return nil
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pool.Start(ctx) }()

	// Wait for every destination to be consuming.
	require.Eventually(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return len(broker.consume) == len(core.Destinations)
	}, 2*time.Second, 5*time.Millisecond)

	ack := &fakeAck{}
	for i, dest := range []core.Destination{core.DestinationCritical, core.DestinationNormal, core.DestinationBatch} {
		task := &core.Task{
			ID:        string(dest) + "-task",
			Type:      core.TaskTypes[i],
			CreatedAt: time.Now(),
		}
		body, err := json.Marshal(task)
		require.NoError(t, err)
		broker.queue(dest.QueueName()) <- amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  uint64(i + 1),
			Body:         body,
		}
	}

	require.Eventually(t, func() bool {
		acks, _ := ack.counts()
		return acks == 3
	}, 2*time.Second, 5*time.Millisecond)

	for _, dest := range []core.Destination{core.DestinationCritical, core.DestinationNormal, core.DestinationBatch} {
		_, ok := handled.Load(string(dest) + "-task")
		assert.True(t, ok, "destination %s not handled", dest)
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestPoolDoubleStart(t *testing.T) {
	broker := newFakeBroker()
	pool := NewPool(PoolConfig{
		Channels: broker.factory(),
		Metrics:  telemetry.NewMetrics(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = pool.Start(ctx) }()
	require.Eventually(t, func() bool { return pool.running.Load() }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, pool.Start(ctx), core.ErrAlreadyStarted)
	cancel()
}

func TestPoolStartFailsWhenChannelFactoryFails(t *testing.T) {
	pool := NewPool(PoolConfig{
		Channels: func() (rabbitmq.Channel, error) { return nil, errors.New("broker down") },
		Metrics:  telemetry.NewMetrics(),
	})

	err := pool.Start(context.Background())
	require.Error(t, err)
	assert.False(t, pool.running.Load())
}

func TestPoolRegisterHandlerValidation(t *testing.T) {
	pool := NewPool(PoolConfig{Metrics: telemetry.NewMetrics()})

	assert.Error(t, pool.RegisterHandler("", func(ctx context.Context, task *core.Task) error { return nil }))
	assert.Error(t, pool.RegisterHandler(core.TaskDataAnalysis, nil))
	assert.NoError(t, pool.RegisterHandler(core.TaskDataAnalysis, func(ctx context.Context, task *core.Task) error { return nil }))
}

func TestPoolPolicyOverridesMerge(t *testing.T) {
	pool := NewPool(PoolConfig{
		Policies: map[core.Destination]core.DestinationPolicy{
			core.DestinationCritical: {Concurrency: 9, Prefetch: 3, MaxRetries: 1, RetryDelay: time.Second},
		},
		Metrics: telemetry.NewMetrics(),
	})

	assert.Equal(t, 9, pool.policies[core.DestinationCritical].Concurrency)
	// Unlisted destinations keep the defaults.
	assert.Equal(t, 2, pool.policies[core.DestinationNormal].Concurrency)
}

func TestPoolStopWhenNotRunning(t *testing.T) {
	pool := NewPool(PoolConfig{Metrics: telemetry.NewMetrics()})
	assert.NoError(t, pool.Stop(context.Background()))
}
