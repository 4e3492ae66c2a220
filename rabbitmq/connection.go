// Package rabbitmq owns the broker hop: connection lifecycle, the
// idempotent topology declaration, and the wire header catalog.
//
// One connection per process; one channel per logical consumer or
// publisher. Channels are never shared across workers.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/routemind/routemind/core"
)

// Channel is the subset of amqp091.Channel the pipeline uses. Tests
// substitute recording fakes.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// ConnectionConfig configures the broker connection.
type ConnectionConfig struct {
	// URL is the full AMQP connection string.
	URL string

	// ConnectTimeout bounds the initial connect including retries.
	// Default: 30s.
	ConnectTimeout time.Duration

	// Logger is an optional logger for connection events.
	Logger core.Logger
}

// Connection wraps the single process-wide broker connection and hands out
// channels. Reconnects happen lazily on the next Channel call after a
// connection loss.
type Connection struct {
	url     string
	timeout time.Duration
	logger  core.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// Dial opens the broker connection, retrying with exponential backoff up
// to the connect timeout.
func Dial(config ConnectionConfig) (*Connection, error) {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	logger := config.Logger
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/broker")
		}
	}

	c := &Connection{
		url:     config.URL,
		timeout: config.ConnectTimeout,
		logger:  logger,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = c.timeout

	attempt := 0
	operation := func() error {
		attempt++
		conn, err := amqp.Dial(c.url)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("Broker connect attempt failed", map[string]interface{}{
					"attempt": attempt,
					"error":   err.Error(),
				})
			}
			return err
		}
		c.conn = conn
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBrokerUnavailable, err)
	}

	if c.logger != nil {
		c.logger.Info("Broker connected", map[string]interface{}{
			"attempts": attempt,
		})
	}
	return nil
}

// Channel returns a fresh channel, reconnecting first when the connection
// has been lost.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		if c.logger != nil {
			c.logger.Warn("Broker connection lost, reconnecting", nil)
		}
		if err := c.connect(); err != nil {
			return nil, err
		}
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrChannelClosed, err)
	}
	return ch, nil
}

// Close shuts the connection down.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
