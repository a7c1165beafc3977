package emitter

import (
	"testing"
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop())
	go h.Run()
	return h
}

func registerClient(t *testing.T, h *Hub, id string) *client {
	t.Helper()
	c := &client{id: id, send: make(chan *Event, 8)}
	h.register <- c
	return c
}

func TestHubBroadcastsToRegisteredClients(t *testing.T) {
	h := newRunningHub(t)
	c := registerClient(t, h, "c1")

	h.EmitSessionUpdated(session.Snapshot{ID: "session_1", Status: session.StatusRunning})

	select {
	case ev := <-c.send:
		assert.Equal(t, EventSessionUpdated, ev.Type)
		assert.Equal(t, "session_1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("client never received the broadcast event")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := newRunningHub(t)
	c := registerClient(t, h, "c1")

	h.unregister <- c

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.send:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestHubDropsEventForSlowClientWithoutBlocking(t *testing.T) {
	h := newRunningHub(t)
	c := &client{id: "slow", send: make(chan *Event)} // unbuffered and never read: every send to it would block
	h.register <- c

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.EmitSessionRemoved("session_x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcasting to a slow client blocked the hub")
	}
}

func TestMarshalEventRoundTrip(t *testing.T) {
	data, err := marshal(&Event{Type: EventDllLoaded, SessionID: "s1", Payload: map[string]interface{}{"name": "kernel32.dll"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"dll-loaded"`)
	assert.Contains(t, string(data), `"session_id":"s1"`)
}
