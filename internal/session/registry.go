// Package session implements the WebSocket connection registry and
// per-connection Redis Pub/Sub subscriber (§4.8): a process-wide
// driver_id -> session map, one subscriber goroutine per connected driver,
// and the deterministic shutdown order required (subscriber
// cancel, then registry removal, then state clear).
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aro-via/routing-maps/internal/audit"
	"github.com/aro-via/routing-maps/internal/driverstate"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/pubsub"
	"github.com/aro-via/routing-maps/internal/queue"
	"github.com/redis/go-redis/v9"
)

// Session is one connected driver's live state: the transport, and the
// cancellation handle for its subscriber goroutine.
type Session struct {
	driverID string
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{} // closed once runSubscriber has returned
	mu       sync.Mutex    // guards writes to conn, which gorilla/websocket requires be single-writer
}

func (s *Session) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry is the shared, mutex-guarded driver_id -> Session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	redis      *redis.Client
	states     *driverstate.Store
	dispatcher *queue.Dispatcher
	audit      *audit.Publisher
	log        *logger.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(redisClient *redis.Client, states *driverstate.Store, dispatcher *queue.Dispatcher, auditPub *audit.Publisher, log *logger.Logger) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		redis:      redisClient,
		states:     states,
		dispatcher: dispatcher,
		audit:      auditPub,
		log:        log,
	}
}

// Connect registers a new session for driverID, starts its subscriber, and
// returns the Session.
func (r *Registry) Connect(driverID string, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{driverID: driverID, conn: conn, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.sessions[driverID] = sess
	r.mu.Unlock()

	go r.runSubscriber(ctx, sess)

	r.log.Infow("session connected", "driver_id", driverID)
	if r.audit != nil {
		r.audit.Publish(context.Background(), audit.EventSessionConnected, map[string]interface{}{"driver_id": driverID})
	}
	return sess
}

// Disconnect tears a session down in the required order: cancel the
// subscriber, wait for it to exit, remove from the registry, then clear
// state.
func (r *Registry) Disconnect(ctx context.Context, driverID string) {
	r.mu.RLock()
	sess, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	sess.cancel()
	<-sess.done

	r.mu.Lock()
	delete(r.sessions, driverID)
	r.mu.Unlock()

	if err := r.states.Clear(ctx, driverID); err != nil {
		r.log.WithError(err).Warnw("state clear failed on disconnect", "driver_id", driverID)
	}

	r.log.Infow("session disconnected", "driver_id", driverID)
	if r.audit != nil {
		r.audit.Publish(ctx, audit.EventSessionDisconnected, map[string]interface{}{"driver_id": driverID})
	}
}

// runSubscriber listens on the driver's reroute channel and forwards each
// message into the session until ctx is cancelled (§4.8 subscriber task).
func (r *Registry) runSubscriber(ctx context.Context, sess *Session) {
	defer close(sess.done)

	sub := pubsub.Subscribe(ctx, r.redis, sess.driverID)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Listen():
			if !ok {
				return
			}
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				r.log.WithError(err).Warnw("invalid reroute payload, dropping", "driver_id", sess.driverID)
				continue
			}
			if err := sess.send(payload); err != nil {
				r.log.WithError(err).Warnw("failed to push route update, driver may be gone", "driver_id", sess.driverID)
			}
		}
	}
}

// EnqueueGPS dispatches a process_gps_update task for driverID without
// waiting for it to complete (§4.8 step 4).
func (r *Registry) EnqueueGPS(ctx context.Context, task queue.Task) {
	if err := r.dispatcher.Enqueue(ctx, task); err != nil {
		r.log.WithError(err).Warnw("failed to enqueue gps task", "driver_id", task.DriverID)
	}
}

// now is overridable in tests; kept here to avoid importing time in every
// call site that only needs "now" for a default timestamp.
var now = time.Now
