package handlers

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/cornea/internal/database/mock"
	detectmock "github.com/kozaktomas/cornea/internal/detect/mock"
	"github.com/kozaktomas/cornea/internal/engine"
)

func dialStream(t *testing.T, h *StreamHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dialing stream: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func allowAll(*http.Request) bool { return true }

func TestStreamHandler_Frames(t *testing.T) {
	e, _ := testEngine(t)
	store := mock.NewMockStore()
	store.CreatePerson(t.Context(), "Jan", "Novák")
	rh := NewRecognizeHandler(e, store, testValidator(), testLog)
	conn := dialStream(t, NewStreamHandler(rh, 0, 0, allowAll, testLog))

	// Binary frame
	if err := conn.WriteMessage(websocket.BinaryMessage, detectmock.Portrait(1, 0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Seq != 0 || msg.Error != "" || len(msg.Faces) != 1 {
		t.Fatalf("unexpected reply %+v", msg)
	}
	if f := msg.Faces[0]; f.Label != 1 || f.Name != "Jan Novák" || !f.Known {
		t.Errorf("unexpected face %+v", f)
	}

	// Base64 text frame
	text := base64.StdEncoding.EncodeToString(detectmock.Portrait(2, 0))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Seq != 1 || len(msg.Faces) != 1 || msg.Faces[0].Label != 2 {
		t.Errorf("unexpected reply %+v", msg)
	}

	// Invalid text frame
	if err := conn.WriteMessage(websocket.TextMessage, []byte("%%%")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Seq != 2 || msg.Error == "" || len(msg.Faces) != 0 {
		t.Errorf("expected an error reply, got %+v", msg)
	}
}

func TestStreamHandler_NotServing(t *testing.T) {
	rh := NewRecognizeHandler(&fakeModel{err: engine.ErrNotServing}, nil, testValidator(), testLog)
	conn := dialStream(t, NewStreamHandler(rh, 0, 0, allowAll, testLog))

	if err := conn.WriteMessage(websocket.BinaryMessage, detectmock.Portrait(1, 0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(msg.Error, engine.ErrNotServing.Error()) {
		t.Errorf("expected not serving error, got %+v", msg)
	}
}

func TestStreamHandler_RejectsOrigin(t *testing.T) {
	rh := NewRecognizeHandler(&fakeModel{}, nil, testValidator(), testLog)
	h := NewStreamHandler(rh, 0, 0, func(*http.Request) bool { return false }, testLog)
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
}
