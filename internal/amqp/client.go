// Package amqp publishes and consumes snapshot change notifications over
// RabbitMQ. The client reconnects lazily with exponential backoff and a
// circuit breaker so broker outages degrade publishing instead of the API.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// breakerState is the circuit breaker state for broker connections.
type breakerState int

const (
	// StateClosed allows operations through normally.
	StateClosed breakerState = iota
	// StateOpen rejects operations until openTimeout elapses.
	StateOpen
	// StateHalfOpen lets a single probe operation through.
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrCircuitOpen is returned when the broker circuit breaker rejects an
// operation without attempting the connection.
var ErrCircuitOpen = errors.New("amqp circuit breaker open")

// Client wraps an AMQP connection for snapshot change fan-out.
type Client struct {
	url      string
	exchange string
	queue    string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	state       breakerState
	failures    int
	lastFailure time.Time
}

// NewClient connects to RabbitMQ and declares the exchange and queue. The
// initial dial is eager so misconfiguration fails at startup.
func NewClient(url, exchange, queue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect dials the broker and declares the topology. Callers must not hold mu.
func (c *Client) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel, c.exchange, c.queue); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ",
		"exchange", c.exchange,
		"queue", c.queue)
	return nil
}

func declareTopology(channel *amqp.Channel, exchange, queue string) error {
	err := channel.ExchangeDeclare(
		exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Routing key matches the queue name; one queue per event type.
	if err := channel.QueueBind(q.Name, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// PublishSnapshotChanged publishes a snapshot change notification. Failures
// trip the circuit breaker; callers treat publish errors as best effort.
func (c *Client) PublishSnapshotChanged(msg SnapshotChangedMessage) error {
	if !c.allowRequest() {
		return ErrCircuitOpen
	}

	body, err := msg.ToJSON()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = c.publish(ctx, body)
	if err != nil && isConnectionError(err) {
		// One reconnect attempt before giving up on this publish.
		if rerr := c.reconnect(); rerr == nil {
			err = c.publish(ctx, body)
		}
	}

	if err != nil {
		c.recordFailure()
		return fmt.Errorf("failed to publish snapshot changed message: %w", err)
	}

	c.recordSuccess()
	c.logger.Debug("published snapshot changed message",
		"user_id", msg.UserID,
		"month", msg.Month,
		"reason", msg.Reason)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if channel == nil {
		return errors.New("channel not open")
	}

	return channel.PublishWithContext(ctx,
		c.exchange,
		c.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
}

func (c *Client) reconnect() error {
	c.closeConn()
	return c.connect()
}

// ConsumeSnapshotChanged consumes notifications until ctx is cancelled.
// Malformed messages are dropped; handler errors requeue the delivery.
func (c *Client) ConsumeSnapshotChanged(ctx context.Context, handler func(context.Context, SnapshotChangedMessage) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if channel == nil {
		return errors.New("channel not open")
	}

	deliveries, err := channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consuming snapshot changed messages", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}

			msg, err := SnapshotChangedMessageFromJSON(delivery.Body)
			if err != nil {
				c.logger.Error("dropping malformed message", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				c.logger.Error("handler failed, requeueing message",
					"user_id", msg.UserID,
					"month", msg.Month,
					"error", err)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

// ConsumeWithReconnect runs ConsumeSnapshotChanged and reconnects with
// exponential backoff whenever the broker drops the connection. Returns only
// when ctx is cancelled.
func (c *Client) ConsumeWithReconnect(ctx context.Context, handler func(context.Context, SnapshotChangedMessage) error) error {
	attempt := 0
	for {
		err := c.ConsumeSnapshotChanged(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.Warn("consumer stopped, reconnecting",
			"error", err,
			"backoff", wait.String(),
			"attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.reconnect(); err != nil {
			c.logger.Error("reconnect failed", "error", err)
			continue
		}
		attempt = 0
	}
}

// allowRequest applies the circuit breaker before an operation.
func (c *Client) allowRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(c.lastFailure) >= openTimeout {
			c.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	}
	return true
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.state = StateClosed
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.lastFailure = time.Now()
	if c.state == StateHalfOpen || c.failures >= maxFailures {
		c.state = StateOpen
	}
}

// exponentialBackoff returns the wait before reconnect attempt n, capped at
// 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// isConnectionError reports whether err indicates a broken broker connection
// worth a reconnect, as opposed to a protocol-level rejection.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"connection refused", "connection reset", "broken pipe", "channel/connection is not open", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the channel and connection
func (c *Client) Close() error {
	c.closeConn()
	c.logger.Info("RabbitMQ connection closed")
	return nil
}
