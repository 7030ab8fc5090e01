package handlers

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/cornea/internal/constants"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamMessage is one reply on the recognition stream.
type StreamMessage struct {
	Seq   int    `json:"seq"`
	Faces []Face `json:"faces"`
	Error string `json:"error,omitempty"`
}

// StreamHandler recognizes frames sent over a websocket.
type StreamHandler struct {
	recognize *RecognizeHandler
	upgrader  websocket.Upgrader
	limit     rate.Limit
	burst     int
	log       *logrus.Entry
}

// NewStreamHandler creates a stream handler. Each connection may submit
// frames at limit per second with the given burst; zero disables limiting.
func NewStreamHandler(rh *RecognizeHandler, limit float64, burst int, checkOrigin func(*http.Request) bool, log *logrus.Entry) *StreamHandler {
	return &StreamHandler{
		recognize: rh,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     checkOrigin,
		},
		limit: rate.Limit(limit),
		burst: max(burst, 1),
		log:   log,
	}
}

// Serve handles GET /api/v1/stream. Binary messages are raw images, text
// messages are base64 images. Every frame gets one StreamMessage reply with
// all faces, best match first.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithField("remote", r.RemoteAddr)
	log.Info("stream opened")
	defer log.Info("stream closed")

	conn.SetReadLimit(constants.MaxFrameBytes * 2)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	ctx := r.Context()
	limiter := rate.NewLimiter(rate.Inf, 0)
	if h.limit > 0 {
		limiter = rate.NewLimiter(h.limit, h.burst)
	}

	done := make(chan struct{})
	writerDone := make(chan struct{})
	replies := make(chan StreamMessage, 1)
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, replies, done, log)
	}()
	defer func() {
		close(done)
		<-writerDone
	}()

	for seq := 0; ; seq++ {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("stream read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(streamPongWait))

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		reply := StreamMessage{Seq: seq, Faces: []Face{}}
		data := message
		if mt == websocket.TextMessage {
			data, err = base64.StdEncoding.DecodeString(string(message))
		}
		if err != nil {
			reply.Error = "frame must be base64 encoded"
		} else if faces, err := h.recognize.recognize(ctx, data, true); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Faces = faces
		}

		select {
		case replies <- reply:
		case <-writerDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop owns all writes to conn.
func (h *StreamHandler) writeLoop(conn *websocket.Conn, replies <-chan StreamMessage, done <-chan struct{}, log *logrus.Entry) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case reply := <-replies:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(reply); err != nil {
				log.WithError(err).Debug("stream write failed")
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
