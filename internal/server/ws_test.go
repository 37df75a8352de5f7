package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/session"
	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return h.Clients() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	return m
}

func TestHub_SendsSnapshotOnConnect(t *testing.T) {
	h := NewHub(func() session.Snapshot {
		return session.Snapshot{Phase: session.Collecting, Label: "fist", Total: 2}
	})
	conn := dialHub(t, h)

	m := readMessage(t, conn)
	if m.Type != MessageSession || m.Session == nil {
		t.Fatalf("expected session message, got %+v", m)
	}
	if m.Session.Phase != session.Collecting || m.Session.Label != "fist" {
		t.Errorf("unexpected snapshot %+v", m.Session)
	}
}

func TestHub_BroadcastsEvents(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h)

	h.OnEvent(session.Event{Type: session.EventGestureResult, Label: "fist", Success: true})

	m := readMessage(t, conn)
	if m.Type != MessageEvent || m.Event == nil {
		t.Fatalf("expected event message, got %+v", m)
	}
	if m.Event.Type != session.EventGestureResult || m.Event.Label != "fist" || !m.Event.Success {
		t.Errorf("unexpected event %+v", m.Event)
	}
}

func TestHub_ThrottlesFrames(t *testing.T) {
	h := NewHub(nil)
	h.SetFrameInterval(time.Hour)
	conn := dialHub(t, h)

	h.OnFrame(detector.FistLandmarks().Frame(1))
	h.OnFrame(detector.FistLandmarks().Frame(2))
	h.OnEvent(session.Event{Type: session.EventSessionStopped})

	first := readMessage(t, conn)
	if first.Type != MessageFrame || first.Frame.TimestampMillis != 1 {
		t.Fatalf("expected first frame, got %+v", first)
	}
	second := readMessage(t, conn)
	if second.Type != MessageEvent {
		t.Errorf("expected throttled frame to be skipped, got %+v", second)
	}

	latest, ok := h.Latest()
	if !ok || latest.TimestampMillis != 2 {
		t.Errorf("expected latest frame 2, got %+v", latest)
	}
}

func TestHub_DropsForSlowClients(t *testing.T) {
	h := NewHub(nil)
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	for range 3 {
		h.OnEvent(session.Event{Type: session.EventGestureResult})
	}

	if h.Dropped() != 2 {
		t.Errorf("expected 2 dropped messages, got %d", h.Dropped())
	}
}

func TestHub_Disconnect(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h)

	conn.Close()
	waitFor(t, func() bool { return h.Clients() == 0 })
}

func TestHub_LatestEmpty(t *testing.T) {
	if _, ok := NewHub(nil).Latest(); ok {
		t.Error("expected no frame before any arrives")
	}
}
