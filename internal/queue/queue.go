// Package queue dispatches process_gps_update tasks (§4.7, §6) over Redis
// Streams. No message-broker library exists anywhere in the reference
// corpus, so the work queue is realized directly on the redis/go-redis/v9
// dependency already used for the cache, driver-state store, and pub/sub:
// one stream shard per entry in a fixed-size ring, with driver_id hashed to
// a shard so a single driver's tasks are always read by the same shard's
// consumer goroutine — giving per-driver ordering without a distributed
// lock, while different drivers' shards drain fully in parallel.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aro-via/routing-maps/internal/logger"
)

// Task is the process_gps_update payload (§6 Work queue).
type Task struct {
	DriverID        string    `json:"driver_id"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	Timestamp       time.Time `json:"timestamp"`
	CompletedStopID string    `json:"completed_stop_id,omitempty"`
}

// Handler processes one Task. Implemented by internal/worker.
type Handler func(ctx context.Context, task Task) error

const (
	streamKeyPrefix = "gps_tasks:"
	fieldPayload    = "payload"
	// hardLimit is the deadline on the context passed to each handler call
	// (§6); no separate soft limit is applied.
	hardLimit = 30 * time.Second
)

// Dispatcher owns one Redis Stream shard per worker goroutine and routes
// each driver's tasks to a single shard by hashing driver_id.
type Dispatcher struct {
	client        *redis.Client
	shardCount    int
	consumerGroup string
	log           *logger.Logger
}

// NewDispatcher builds a Dispatcher with shardCount stream shards.
func NewDispatcher(client *redis.Client, shardCount int, consumerGroup string, log *logger.Logger) *Dispatcher {
	if shardCount < 1 {
		shardCount = 1
	}
	return &Dispatcher{client: client, shardCount: shardCount, consumerGroup: consumerGroup, log: log}
}

func (d *Dispatcher) shardKey(driverID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(driverID))
	shard := int(h.Sum32()) % d.shardCount
	if shard < 0 {
		shard += d.shardCount
	}
	return fmt.Sprintf("%s%d", streamKeyPrefix, shard)
}

// Enqueue appends task to the shard owning its driver_id.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	stream := d.shardKey(task.DriverID)
	return d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{fieldPayload: raw},
	}).Err()
}

// Run starts one consumer goroutine per shard, each draining its stream
// sequentially and invoking handler for every task. Run returns once the
// goroutines are started; they stop when ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, handler Handler) {
	for shard := 0; shard < d.shardCount; shard++ {
		stream := fmt.Sprintf("%s%d", streamKeyPrefix, shard)
		d.ensureGroup(ctx, stream)
		go d.consumeShard(ctx, stream, handler)
	}
}

func (d *Dispatcher) ensureGroup(ctx context.Context, stream string) {
	err := d.client.XGroupCreateMkStream(ctx, stream, d.consumerGroup, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists — not an error.
		d.log.Debugw("xgroup create (may already exist)", "stream", stream, "error", err)
	}
}

func (d *Dispatcher) consumeShard(ctx context.Context, stream string, handler Handler) {
	consumerName := "consumer-" + uuid.New().String()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.consumerGroup,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.log.WithError(err).Warnw("xreadgroup failed", "stream", stream)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				d.processMessage(ctx, stream, msg, handler)
			}
		}
	}
}

func (d *Dispatcher) processMessage(ctx context.Context, stream string, msg redis.XMessage, handler Handler) {
	handleCtx, cancel := context.WithTimeout(ctx, hardLimit)
	defer cancel()

	raw, _ := msg.Values[fieldPayload].(string)
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		d.log.WithError(err).Warnw("dropping malformed task", "stream", stream, "id", msg.ID)
		d.client.XAck(ctx, stream, d.consumerGroup, msg.ID)
		return
	}

	if err := handler(handleCtx, task); err != nil {
		d.log.WithError(err).Warnw("task handler failed", "stream", stream, "driver_id", task.DriverID)
	}
	d.client.XAck(ctx, stream, d.consumerGroup, msg.ID)
}
