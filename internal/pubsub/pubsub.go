// Package pubsub wraps the driver-specific reroute:{driver_id} Redis
// Pub/Sub channel (§4.7 publish step, §4.8 subscriber).
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aro-via/routing-maps/internal/logger"
)

func channelName(driverID string) string {
	return fmt.Sprintf("reroute:%s", driverID)
}

// Publisher publishes route_updated payloads to a driver's channel.
type Publisher struct {
	client *redis.Client
	log    *logger.Logger
}

// NewPublisher wraps an existing Redis client for publishing.
func NewPublisher(client *redis.Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, log: log}
}

// Publish marshals payload as JSON and publishes it to the driver's
// reroute channel. Failure is logged but never returned — publishing is
// best-effort (§4.7 step 8).
func (p *Publisher) Publish(ctx context.Context, driverID string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.log.WithError(err).Warnw("reroute payload marshal failed", "driver_id", driverID)
		return
	}
	if err := p.client.Publish(ctx, channelName(driverID), raw).Err(); err != nil {
		p.log.WithError(err).Warnw("reroute publish failed", "driver_id", driverID)
	}
}

// Subscription is a live subscription to one driver's reroute channel.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription to driverID's reroute channel.
func Subscribe(ctx context.Context, client *redis.Client, driverID string) *Subscription {
	return &Subscription{pubsub: client.Subscribe(ctx, channelName(driverID))}
}

// Listen returns the channel of incoming messages. The caller is expected
// to range over it until Close is called, at which point it closes.
func (s *Subscription) Listen() <-chan *redis.Message {
	return s.pubsub.Channel()
}

// Close unsubscribes and releases the underlying connection.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
