package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"

	"github.com/scanforge/serialscan/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 << 10,
	WriteBufferSize: 16 << 10,
	// The scanning UI is same-origin; embedders override at the proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsControl is a client text message. Binary messages carry encoded
// frame images and need no envelope.
type wsControl struct {
	Type string `json:"type"` // start, confirm, deny, stop
}

// wsError is pushed to the client on a recoverable protocol error.
type wsError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// handleWS runs one live scanning session per connection. The client
// sends a "start" control message, then streams encoded frames as binary
// messages; the server pushes the session's event stream back. A
// borderline decision suspends the session until the client answers with
// "confirm" or "deny".
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxFrameBytes)

	s.metrics.wsConnections.Inc()
	defer s.metrics.wsConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Close rather than Stop: a client that vanishes mid-borderline (or
	// before starting) must not strand the session and its event pump.
	sess := s.pipe.NewSession()
	defer sess.Close()

	// gorilla permits one concurrent writer; the event pump and the error
	// replies share the connection.
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return conn.WriteJSON(v)
	}

	start := time.Now()
	go func() {
		for ev := range sess.Events() {
			if ev.Kind == pipeline.EventDecision && ev.Result != nil {
				s.metrics.observeSession(*ev.Result, sess.Stats(), time.Since(start).Seconds())
			}
			if err := writeJSON(ev); err != nil {
				cancel()
				return
			}
		}
	}()

	started := false
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket closed", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if !started {
				_ = writeJSON(wsError{Kind: "error", Error: "session not started"})
				continue
			}
			img, err := imaging.Decode(bytes.NewReader(data))
			if err != nil {
				_ = writeJSON(wsError{Kind: "error", Error: "undecodable frame"})
				continue
			}
			sess.OnFrame(pipeline.Frame{Image: img, Timestamp: time.Now()})

		case websocket.TextMessage:
			var ctl wsControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				_ = writeJSON(wsError{Kind: "error", Error: "malformed control message"})
				continue
			}
			switch ctl.Type {
			case "start":
				if started {
					_ = writeJSON(wsError{Kind: "error", Error: "session already started"})
					continue
				}
				if err := sess.Start(ctx); err != nil {
					_ = writeJSON(wsError{Kind: "error", Error: err.Error()})
					continue
				}
				started = true
				start = time.Now()
				s.metrics.sessionsStarted.Inc()
			case "confirm":
				sess.Resolve(true)
			case "deny":
				sess.Resolve(false)
			case "stop":
				sess.Stop()
			default:
				_ = writeJSON(wsError{Kind: "error", Error: "unknown control type"})
			}
		}
	}
}
