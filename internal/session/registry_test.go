package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aro-via/routing-maps/internal/driverstate"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/pubsub"
	"github.com/aro-via/routing-maps/internal/queue"
)

// These tests drive the registry through a real Redis instance and a real
// WebSocket connection and only run when REDIS_TEST_ADDR is set, matching
// the driverstate package's pattern of skipping anything needing live
// infrastructure by default.
func newTestRegistry(t *testing.T) (*Registry, *redis.Client) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis-backed session test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	states := driverstate.NewStore(client, time.Hour, time.Minute, logger.Default())
	dispatcher := queue.NewDispatcher(client, 2, "session-test-group", logger.Default())
	reg := NewRegistry(client, states, dispatcher, nil, logger.Default())
	return reg, client
}

func testRouter(reg *Registry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/driver/{driver_id}", reg.Handler())
	return r
}

func TestRegistry_ConnectAndDisconnectLifecycle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	srv := httptest.NewServer(testRouter(reg))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/driver/driver-session-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	reg.mu.RLock()
	_, connected := reg.sessions["driver-session-1"]
	reg.mu.RUnlock()
	require.True(t, connected)

	require.NoError(t, conn.Close())
	time.Sleep(100 * time.Millisecond)

	reg.mu.RLock()
	_, stillConnected := reg.sessions["driver-session-1"]
	reg.mu.RUnlock()
	require.False(t, stillConnected)
}

func TestRegistry_PublishesRerouteToConnectedSession(t *testing.T) {
	reg, client := newTestRegistry(t)

	srv := httptest.NewServer(testRouter(reg))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/driver/driver-session-2"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // let the subscriber goroutine attach

	pub := pubsub.NewPublisher(client, logger.Default())
	pub.Publish(context.Background(), "driver-session-2", map[string]string{"type": "route_updated"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "route_updated", payload["type"])
}
