package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/serialscan/internal/pipeline"
	"github.com/scanforge/serialscan/internal/validator"
)

// dialWS connects a test client to the server's live scanning endpoint.
func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/scan/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads JSON messages until one matches the wanted kind.
// Protocol errors fail the test immediately.
func readEvent(t *testing.T, conn *websocket.Conn, kind pipeline.EventKind) pipeline.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var ev pipeline.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Kind == "error" {
			t.Fatalf("server error: %+v", ev)
		}
		if ev.Kind == kind {
			return ev
		}
	}
}

func sendControl(t *testing.T, conn *websocket.Conn, typ string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(wsControl{Type: typ}))
}

func TestWebSocketAcceptFlow(t *testing.T) {
	srv := newTestServer(t, 0.95)
	conn := dialWS(t, srv)
	frame := encodeFrame(t)

	sendControl(t, conn, "start")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	// High confidence exits after the first candidate.
	ev := readEvent(t, conn, pipeline.EventDecision)
	require.NotNil(t, ev.Result)
	assert.Equal(t, validator.LevelAccept, ev.Result.Level)
	assert.Equal(t, "C02X1234ABCD", ev.Result.Serial)
}

func TestWebSocketBorderlineConfirmFlow(t *testing.T) {
	// 0.85 clears the classifier gate but lands in the confirm band.
	srv := newTestServer(t, 0.85)
	conn := dialWS(t, srv)
	frame := encodeFrame(t)

	sendControl(t, conn, "start")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	// Wait until the frame has buffered a candidate before stopping, so
	// the decision evaluates a non-empty history.
	readEvent(t, conn, pipeline.EventCandidate)
	sendControl(t, conn, "stop")

	borderline := readEvent(t, conn, pipeline.EventBorderline)
	require.NotNil(t, borderline.Result)
	assert.Equal(t, validator.LevelBorderline, borderline.Result.Level)

	sendControl(t, conn, "confirm")
	decision := readEvent(t, conn, pipeline.EventDecision)
	require.NotNil(t, decision.Result)
	assert.Equal(t, validator.LevelAccept, decision.Result.Level)
	assert.Equal(t, validator.ReasonConfirmed, decision.Result.Reason)
}

func TestWebSocketBorderlineDenyFlow(t *testing.T) {
	srv := newTestServer(t, 0.85)
	conn := dialWS(t, srv)

	sendControl(t, conn, "start")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encodeFrame(t)))
	readEvent(t, conn, pipeline.EventCandidate)
	sendControl(t, conn, "stop")
	readEvent(t, conn, pipeline.EventBorderline)

	sendControl(t, conn, "deny")
	decision := readEvent(t, conn, pipeline.EventDecision)
	require.NotNil(t, decision.Result)
	assert.Equal(t, validator.LevelReject, decision.Result.Level)
	assert.Equal(t, validator.ReasonDenied, decision.Result.Reason)
}

func TestWebSocketAbandonedBorderlineSettlesAsDeny(t *testing.T) {
	srv := newTestServer(t, 0.85)
	conn := dialWS(t, srv)

	sendControl(t, conn, "start")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encodeFrame(t)))
	readEvent(t, conn, pipeline.EventCandidate)
	sendControl(t, conn, "stop")
	readEvent(t, conn, pipeline.EventBorderline)

	// Disconnect without answering. The handler must deny the suspended
	// session instead of leaving it and its event pump stranded.
	require.NoError(t, conn.Close())

	rejected := srv.metrics.sessionOutcomes.WithLabelValues(string(validator.LevelReject))
	assert.Eventually(t, func() bool {
		return promtestutil.ToFloat64(rejected) >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsFrameBeforeStart(t *testing.T) {
	srv := newTestServer(t, 0.95)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encodeFrame(t)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp wsError
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "error", resp.Kind)
	assert.Contains(t, resp.Error, "not started")
}

func TestWebSocketRejectsUndecodableFrame(t *testing.T) {
	srv := newTestServer(t, 0.95)
	conn := dialWS(t, srv)

	sendControl(t, conn, "start")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("junk")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp wsError
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "error", resp.Kind)
	assert.Contains(t, resp.Error, "undecodable")
}

func TestWebSocketDoubleStart(t *testing.T) {
	srv := newTestServer(t, 0.95)
	conn := dialWS(t, srv)

	sendControl(t, conn, "start")
	sendControl(t, conn, "start")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp wsError
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Contains(t, resp.Error, "already started")
}
