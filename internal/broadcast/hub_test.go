package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geofence"
	"fleet_tracker/internal/stream"
)

// serveRoom upgrades every request and joins it to the room named in the
// "room" query parameter.
func serveRoom(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.RegisterClient(r.URL.Query().Get("room"), conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.UnregisterClient(c)
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToRoomOnly(t *testing.T) {
	h := NewHub()
	t.Cleanup(h.Close)
	srv := serveRoom(t, h)

	a := dial(t, srv, FleetRoom("SM-001"))
	b := dial(t, srv, FleetRoom("SM-002"))
	require.Eventually(t, func() bool {
		return h.ClientCount(FleetRoom("SM-001")) == 1 && h.ClientCount(FleetRoom("SM-002")) == 1
	}, time.Second, 10*time.Millisecond)

	handler := MovementHandler(h)
	err := handler(context.Background(), stream.Entry{ID: "1-0", Kind: events.KindMovementState, Payload: map[string]any{
		"fleetNo": "SM-001", "routeId": 1, "routeName": "A - C",
		"currentStageId": 11, "currentStage": "A", "direction": "forward",
		"observedAt": "2026-01-01T06:00:00Z",
	}})
	require.NoError(t, err)

	var got struct {
		Event string               `json:"event"`
		Data  events.MovementState `json:"data"`
	}
	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, a.ReadJSON(&got))
	assert.Equal(t, EventMovement, got.Event)
	assert.Equal(t, "SM-001", got.Data.FleetNo)
	assert.Equal(t, geofence.Forward, got.Data.Direction)

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "other rooms receive nothing")
}

func TestHubUnregistersClosedClients(t *testing.T) {
	h := NewHub()
	t.Cleanup(h.Close)
	srv := serveRoom(t, h)

	conn := dial(t, srv, CommandRoom)
	require.Eventually(t, func() bool { return h.ClientCount(CommandRoom) == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount(CommandRoom) == 0 }, time.Second, 10*time.Millisecond)
}

func TestMovementHandlerDropsOtherKinds(t *testing.T) {
	h := NewHub()
	t.Cleanup(h.Close)
	err := MovementHandler(h)(context.Background(), stream.Entry{ID: "1-0", Kind: events.KindTelemetryJSON, Payload: map[string]any{}})
	assert.ErrorIs(t, err, stream.ErrDropped)
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	h := NewHub()
	h.Close()
	h.Close()
	assert.NotPanics(t, func() { h.Publish(Event{Room: CommandRoom}) })
}
