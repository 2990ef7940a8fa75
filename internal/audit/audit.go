// Package audit publishes a small set of coarse-grained domain events to a
// Kafka topic for offline analytics (§4.9). It is a side-channel only:
// nothing in the control loop reads these events back, and every publish
// failure is logged and otherwise ignored.
package audit

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/aro-via/routing-maps/internal/logger"
)

// Event types this service emits.
const (
	EventRouteOptimized      = "route.optimized"
	EventRouteRerouted       = "route.rerouted"
	EventSessionConnected    = "driver.session_connected"
	EventSessionDisconnected = "driver.session_disconnected"
	eventSource              = "routing-maps"
)

// Event is the envelope every audit record is wrapped in.
type Event struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Source string      `json:"source"`
	Time   time.Time   `json:"time"`
	Data   interface{} `json:"data"`
}

func newEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:     uuid.New().String(),
		Type:   eventType,
		Source: eventSource,
		Time:   time.Now().UTC(),
		Data:   data,
	}
}

// Publisher is a fire-and-forget Kafka producer for domain events.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	brokers []string
	log     *logger.Logger
}

// NewPublisher builds a Publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string, log *logger.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return &Publisher{writer: writer, topic: topic, brokers: brokers, log: log}
}

// Ping reports whether at least one configured broker is reachable, for use
// by the HTTP health endpoint (§12 supplement).
func (p *Publisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		d := &net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", broker)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// Publish emits eventType with the given payload. Failures are logged, not
// returned — callers must never let the audit stream affect the control
// loop's success or latency.
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) {
	event := newEvent(eventType, data)
	raw, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Warnw("audit event marshal failed", "event_type", eventType)
		return
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ID),
		Value: raw,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).Warnw("audit event publish failed", "event_type", eventType)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
