package rabbitmq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemind/routemind/core"
)

// fakeChannel records topology declarations and publishes.
type fakeChannel struct {
	exchanges map[string]string     // name → kind
	queues    map[string]amqp.Table // name → args
	bindings  map[string]string     // queue+key → exchange
	published []fakePublish
	closed    bool
}

type fakePublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges: make(map[string]string),
		queues:    make(map[string]amqp.Table),
		bindings:  make(map[string]string),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings[name+"|"+key] = exchange
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.published = append(f.published, fakePublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch := make(chan amqp.Delivery)
	close(ch)
	return ch, nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestDeclareTopology(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, DeclareTopology(ch))

	assert.Equal(t, "topic", ch.exchanges[core.PriorityExchange])
	assert.Equal(t, "direct", ch.exchanges[core.AnomalyExchange])
	assert.Equal(t, "direct", ch.exchanges[core.DLQExchange])

	// Six destinations plus the DLQ.
	assert.Len(t, ch.queues, 7)

	for _, dest := range core.Destinations {
		props := dest.Properties()
		args := ch.queues[dest.QueueName()]
		require.NotNil(t, args, "queue %s", dest)

		assert.Equal(t, int32(props.WirePriority), args["x-max-priority"])
		assert.Equal(t, core.DLQExchange, args["x-dead-letter-exchange"])
		assert.Equal(t, core.DLQRoutingKey, args["x-dead-letter-routing-key"])
		assert.Equal(t, int32(props.TTL.Milliseconds()), args["x-message-ttl"])
		assert.Equal(t, int32(props.MaxDepth), args["x-max-length"])
		assert.Equal(t, "reject-publish", args["x-overflow"])

		assert.Equal(t, props.Exchange, ch.bindings[dest.QueueName()+"|"+props.RoutingKey])
	}

	assert.Equal(t, core.DLQExchange, ch.bindings[core.DLQQueue+"|"+core.DLQRoutingKey])
}

func TestDeclareTopologyIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, DeclareTopology(ch))

	first := struct {
		exchanges map[string]string
		queues    int
		bindings  map[string]string
	}{
		exchanges: copyMap(ch.exchanges),
		queues:    len(ch.queues),
		bindings:  copyMap(ch.bindings),
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, DeclareTopology(ch))
	}

	assert.Equal(t, first.exchanges, ch.exchanges)
	assert.Equal(t, first.queues, len(ch.queues))
	assert.Equal(t, first.bindings, ch.bindings)
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
