package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/routemind/routemind/core"
)

// ConfirmChannel wraps a broker channel in publisher-confirm mode. Every
// publish waits for the broker's confirmation; the nack produced by a
// reject-publish overflow surfaces as core.ErrQueueOverflow so
// the submitter sees the backpressure.
type ConfirmChannel struct {
	ch *amqp.Channel
}

// NewConfirmChannel puts ch into confirm mode.
func NewConfirmChannel(ch *amqp.Channel) (*ConfirmChannel, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable confirm mode: %w", err)
	}
	return &ConfirmChannel{ch: ch}, nil
}

// PublishWithContext publishes and waits for the broker confirmation.
func (c *ConfirmChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	confirmation, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
	if err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.ChannelError {
			return fmt.Errorf("%w: %v", core.ErrChannelClosed, err)
		}
		return fmt.Errorf("%w: %v", core.ErrPublishFailed, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPublishFailed, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker rejected publish to %s/%s", core.ErrQueueOverflow, exchange, key)
	}
	return nil
}

func (c *ConfirmChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return c.ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (c *ConfirmChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return c.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (c *ConfirmChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return c.ch.QueueBind(name, key, exchange, noWait, args)
}

func (c *ConfirmChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (c *ConfirmChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return c.ch.Qos(prefetchCount, prefetchSize, global)
}

func (c *ConfirmChannel) Close() error {
	return c.ch.Close()
}
