package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/routemind/routemind/core"
)

// DeclareTopology declares the full broker topology: the priority, anomaly
// and dead-letter exchanges, every destination queue with its policy
// arguments, and the bindings. Declaration is idempotent; both the
// producer and the consumer pool run it at startup.
func DeclareTopology(ch Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{core.PriorityExchange, "topic"},
		{core.AnomalyExchange, "direct"},
		{core.DLQExchange, "direct"},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.name, err)
		}
	}

	for _, dest := range core.Destinations {
		props := dest.Properties()
		args := amqp.Table{
			"x-max-priority":            int32(props.WirePriority),
			"x-dead-letter-exchange":    core.DLQExchange,
			"x-dead-letter-routing-key": core.DLQRoutingKey,
			"x-message-ttl":             int32(props.TTL.Milliseconds()),
			"x-max-length":              int32(props.MaxDepth),
			"x-overflow":                "reject-publish",
		}
		if _, err := ch.QueueDeclare(dest.QueueName(), true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dest.QueueName(), err)
		}
		if err := ch.QueueBind(dest.QueueName(), props.RoutingKey, props.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", dest.QueueName(), err)
		}
	}

	if _, err := ch.QueueDeclare(core.DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", core.DLQQueue, err)
	}
	if err := ch.QueueBind(core.DLQQueue, core.DLQRoutingKey, core.DLQExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", core.DLQQueue, err)
	}

	return nil
}
