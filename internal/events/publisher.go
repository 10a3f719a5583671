// internal/events/publisher.go
package events

import (
	"context"
	"errors"
	"fmt"
	"libradesk/internal/journal"
	"libradesk/internal/metrics"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeName = "libradesk.events"
	exchangeType = "topic"
	eventVersion = "1.0.0"

	queueSize = 256

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrQueueFull is returned when events arrive faster than the broker takes them
var ErrQueueFull = errors.New("publish queue is full")

var (
	errNotAcknowledged = errors.New("event not acknowledged")
	errConfirmTimeout  = errors.New("confirmation timeout")
	errConfirmsClosed  = errors.New("confirmation channel closed")
)

// confirmChannel is the part of *amqp.Channel the publisher needs.
type confirmChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	Close() error
}

// Envelope is the message body sent to the exchange.
type Envelope struct {
	EventID      string              `json:"event_id"`
	EventType    string              `json:"event_type"`
	EventVersion string              `json:"event_version"`
	Timestamp    string              `json:"timestamp"`
	Seq          int64               `json:"seq"`
	SubjectID    string              `json:"subject_id"`
	Payload      jsoniter.RawMessage `json:"payload"`
}

// Publisher forwards committed journal events to RabbitMQ in the background.
type Publisher struct {
	conn     *amqp.Connection
	channel  confirmChannel
	confirms chan amqp.Confirmation
	log      *zap.Logger

	// deliveryTag counts accepted publishes; the broker confirms with the same
	// numbering. Only the worker goroutine touches it.
	deliveryTag    uint64
	confirmTimeout time.Duration

	queue chan journal.Event
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPublisher connects to RabbitMQ and declares the topic exchange.
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", exchangeName))

	p := newPublisher(channel, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch confirmChannel, log *zap.Logger) *Publisher {
	p := &Publisher{
		channel:        ch,
		confirms:       ch.NotifyPublish(make(chan amqp.Confirmation, queueSize)),
		log:            log,
		queue:          make(chan journal.Event, queueSize),
		confirmTimeout: confirmTimeout,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish queues a committed event. It has the circulation listener signature
// and never blocks the caller on the broker.
func (p *Publisher) Publish(_ context.Context, event journal.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- event:
		return nil
	default:
		metrics.PublishFailures.Inc()
		return ErrQueueFull
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.publishWithRetry(ctx, event); err != nil {
			metrics.PublishFailures.Inc()
		}
		cancel()
	}
}

// NewEnvelope wraps a journal event for the wire.
func NewEnvelope(event journal.Event) Envelope {
	return Envelope{
		EventID:      uuid.New().String(),
		EventType:    string(event.Type),
		EventVersion: eventVersion,
		Timestamp:    event.OccurredAt.UTC().Format(time.RFC3339),
		Seq:          event.Seq,
		SubjectID:    event.SubjectID,
		Payload:      event.Data,
	}
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *Publisher) publishWithRetry(ctx context.Context, event journal.Event) error {
	envelope := NewEnvelope(event)
	routingKey := event.RoutingKey()

	body, err := jsoniter.ConfigFastest.Marshal(envelope)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		err := p.channel.PublishWithContext(
			ctx,
			exchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				MessageId:    envelope.EventID,
				Body:         body,
				Headers: amqp.Table{
					"event_type":    envelope.EventType,
					"event_version": envelope.EventVersion,
					"seq":           envelope.Seq,
				},
			},
		)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		p.deliveryTag++
		acked, err := p.waitConfirm(ctx, p.deliveryTag)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if acked {
			p.log.Debug("Event published",
				zap.String("event_id", envelope.EventID),
				zap.Int64("seq", envelope.Seq),
				zap.String("routing_key", routingKey),
			)
			return nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = errNotAcknowledged
		}

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.Int64("seq", event.Seq),
		zap.String("event_type", string(event.Type)),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// waitConfirm waits for the confirmation carrying tag. Confirmations for earlier
// tags belong to publishes that already timed out and are dropped.
func (p *Publisher) waitConfirm(ctx context.Context, tag uint64) (bool, error) {
	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return false, errConfirmsClosed
			}
			if confirm.DeliveryTag < tag {
				p.log.Debug("Dropping stale confirmation",
					zap.Uint64("delivery_tag", confirm.DeliveryTag),
					zap.Uint64("waiting_for", tag),
				)
				continue
			}
			return confirm.Ack, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, errConfirmTimeout
		}
	}
}

// IsHealthy checks if the publisher connection is healthy
func (p *Publisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close drains queued events and closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()

	if err := p.channel.Close(); err != nil {
		p.log.Error("Failed to close channel", zap.Error(err))
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}
