package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aro-via/routing-maps/internal/queue"
)

// maxClockSkew is how far a client-supplied GPS timestamp may drift from
// server time before the frame is rejected rather than trusted (§12
// supplement — the original has no such guard, but a raw client clock is
// not a safe input to TTL and cooldown arithmetic without one).
const maxClockSkew = 24 * time.Hour

// gpsFrame is the client->server WS message shape (§6).
type gpsFrame struct {
	Type            string     `json:"type"`
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	CompletedStopID string     `json:"completed_stop_id,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The driver mobile app is a different origin than this API; origin
	// checking is handled upstream at the load balancer, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler returns the http.HandlerFunc for the /ws/driver/{driver_id}
// upgrade route.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		driverID := mux.Vars(req)["driver_id"]
		if driverID == "" {
			http.Error(w, "driver_id is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.log.WithError(err).Warnw("websocket upgrade failed", "driver_id", driverID)
			return
		}

		sess := r.Connect(driverID, conn)
		r.readLoop(driverID, sess, conn)
	}
}

func (r *Registry) readLoop(driverID string, sess *Session, conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
		r.Disconnect(context.Background(), driverID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame gpsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			_ = sess.send(errorFrame{Type: "error", Message: "malformed frame"})
			continue
		}
		if frame.Type != "" && frame.Type != "gps_update" {
			_ = sess.send(errorFrame{Type: "error", Message: "unknown frame type"})
			continue
		}
		var coords struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		}
		_ = json.Unmarshal(raw, &coords)
		if coords.Lat == nil || coords.Lng == nil {
			r.log.Warnw("gps frame missing lat or lng, ignoring", "driver_id", driverID)
			continue
		}

		ts := now()
		if frame.Timestamp != nil {
			if skew := ts.Sub(*frame.Timestamp); skew > maxClockSkew || skew < -maxClockSkew {
				_ = sess.send(errorFrame{Type: "error", Message: "timestamp too far from server time"})
				continue
			}
			ts = *frame.Timestamp
		}

		r.EnqueueGPS(context.Background(), queue.Task{
			DriverID:        driverID,
			Lat:             frame.Lat,
			Lng:             frame.Lng,
			Timestamp:       ts,
			CompletedStopID: frame.CompletedStopID,
		})
	}
}
