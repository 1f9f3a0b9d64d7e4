package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mist-signaling/internal/config"
	"github.com/rickgao/mist-signaling/internal/evaluation"
	"github.com/rickgao/mist-signaling/internal/router"
)

type testRelay struct {
	srv    *Server
	router *router.Router
	log    *evaluation.Log
	http   *httptest.Server
	url    string
}

func newTestRelay(t *testing.T, mutate func(*config.ServerConfig)) *testRelay {
	t.Helper()

	cfg := config.Default().Server
	if mutate != nil {
		mutate(&cfg)
	}

	log := evaluation.NewLog(evaluation.LogConfig{})
	rt := router.New(router.Config{Rand: rand.New(rand.NewPCG(1, 2))}, log, nil, nil)
	srv := New(cfg, rt, nil)
	hs := httptest.NewServer(srv.Handler())

	rel := &testRelay{
		srv:    srv,
		router: rt,
		log:    log,
		http:   hs,
		url:    "ws" + strings.TrimPrefix(hs.URL, "http") + cfg.Path,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		hs.Close()
	})
	return rel
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	return string(data)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (r *testRelay) waitPool(t *testing.T, want ...string) {
	t.Helper()
	waitFor(t, "pool "+strings.Join(want, ","), func() bool {
		return slices.Equal(r.router.PoolMembers(), want)
	})
}

func TestServer_MatchAndRelay(t *testing.T) {
	rel := newTestRelay(t, nil)
	a, b := rel.dial(t), rel.dial(t)

	send(t, a, `{"type":"signaling_request","id":"A"}`)
	rel.waitPool(t, "A")

	send(t, b, `{"type":"signaling_request","id":"B"}`)
	var resp router.SignalingResponse
	if err := json.Unmarshal([]byte(recv(t, b)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != "signaling_response" || resp.TargetID != "A" || resp.Request != "offer" {
		t.Errorf("response = %+v", resp)
	}
	rel.waitPool(t, "A", "B")

	// A was never sent a signaling_response, so the offer is its first frame.
	offer := `{"type":"offer","target_id":"A","id":"B","sdp":"v=0"}`
	send(t, b, offer)
	if got := recv(t, a); got != offer {
		t.Errorf("A received %s, want %s", got, offer)
	}

	answer := `{"type":"answer","target_id":"B","sdp":"v=0 answer"}`
	send(t, a, answer)
	if got := recv(t, b); got != answer {
		t.Errorf("B received %s, want %s", got, answer)
	}
}

func TestServer_DisconnectCleansUp(t *testing.T) {
	rel := newTestRelay(t, nil)
	a, b := rel.dial(t), rel.dial(t)

	send(t, a, `{"type":"signaling_request","id":"A"}`)
	rel.waitPool(t, "A")
	send(t, b, `{"type":"signaling_request","id":"B"}`)
	recv(t, b)
	rel.waitPool(t, "A", "B")

	a.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	a.Close()

	rel.waitPool(t, "B")
	if _, ok := rel.router.Lookup("A"); ok {
		t.Error("A still registered after disconnect")
	}

	// Relay to the departed peer is dropped; B stays connected.
	send(t, b, `{"type":"offer","target_id":"A"}`)
	send(t, b, `{"type":"evaluation","location":1}`)
	waitFor(t, "evaluation from B", func() bool { return rel.router.Stats().Evaluations == 1 })
	if n := rel.router.Stats().UnknownTargets; n != 1 {
		t.Errorf("UnknownTargets = %d, want 1", n)
	}
}

func TestServer_AbruptDisconnectCleansUp(t *testing.T) {
	rel := newTestRelay(t, nil)
	a, b := rel.dial(t), rel.dial(t)

	send(t, a, `{"type":"signaling_request","id":"A"}`)
	rel.waitPool(t, "A")
	send(t, b, `{"type":"signaling_request","id":"B"}`)
	recv(t, b)
	rel.waitPool(t, "A", "B")

	// Drop the TCP connection without a close frame.
	if err := a.UnderlyingConn().Close(); err != nil {
		t.Fatalf("close underlying conn: %v", err)
	}

	rel.waitPool(t, "B")
	if _, ok := rel.router.Lookup("A"); ok {
		t.Error("A still registered after abrupt disconnect")
	}
	waitFor(t, "connection release", func() bool { return rel.srv.Stats().Active == 1 })
	if n := rel.router.Stats().Sessions; n != 1 {
		t.Errorf("Sessions = %d, want 1", n)
	}
}

func TestServer_UnregisteredDisconnect(t *testing.T) {
	rel := newTestRelay(t, nil)
	a := rel.dial(t)
	a.Close()

	waitFor(t, "connection release", func() bool { return rel.srv.Stats().Active == 0 })
	if n := rel.router.Stats().Sessions; n != 0 {
		t.Errorf("Sessions = %d, want 0", n)
	}
}

func TestServer_MalformedFrameClosesConnection(t *testing.T) {
	tests := []struct {
		name     string
		frames   []string
		wantCode int
	}{
		{"invalid json", []string{`{oops`}, websocket.CloseUnsupportedData},
		{"missing id", []string{`{"type":"signaling_request"}`}, websocket.ClosePolicyViolation},
		{"missing target", []string{`{"type":"signaling_request","id":"A"}`, `{"type":"offer"}`}, websocket.ClosePolicyViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := newTestRelay(t, nil)
			c := rel.dial(t)
			for _, f := range tt.frames {
				send(t, c, f)
			}

			c.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := c.ReadMessage()
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.Fatalf("ReadMessage() error = %v, want close error", err)
			}
			if ce.Code != tt.wantCode {
				t.Errorf("close code = %d, want %d", ce.Code, tt.wantCode)
			}

			rel.waitPool(t)
			waitFor(t, "session cleanup", func() bool { return rel.router.Stats().Sessions == 0 })
		})
	}
}

func TestServer_ConnectionLimit(t *testing.T) {
	rel := newTestRelay(t, func(c *config.ServerConfig) { c.MaxConnections = 1 })
	rel.dial(t)

	_, resp, err := websocket.DefaultDialer.Dial(rel.url, nil)
	if err == nil {
		t.Fatal("second Dial() succeeded over the limit")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}

func TestServer_ReadLimit(t *testing.T) {
	rel := newTestRelay(t, func(c *config.ServerConfig) { c.ReadLimit = 64 })
	c := rel.dial(t)

	send(t, c, `{"type":"evaluation","id":"A","location":"`+strings.Repeat("x", 128)+`"}`)

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("oversized frame did not close the connection")
	}
	waitFor(t, "connection release", func() bool { return rel.srv.Stats().Active == 0 })
}

func TestServer_HeartbeatPings(t *testing.T) {
	rel := newTestRelay(t, func(c *config.ServerConfig) { c.PingInterval = 50 * time.Millisecond })
	c := rel.dial(t)

	pinged := make(chan struct{}, 1)
	c.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})

	// Control frames are processed inside ReadMessage.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping from server")
	}
}

func TestServer_PongTimeout(t *testing.T) {
	rel := newTestRelay(t, func(c *config.ServerConfig) {
		c.PingInterval = time.Hour
		c.PongTimeout = 100 * time.Millisecond
	})
	c := rel.dial(t)
	send(t, c, `{"type":"signaling_request","id":"A"}`)
	rel.waitPool(t, "A")

	// No reads, so no pongs: the server times the peer out.
	waitFor(t, "idle peer eviction", func() bool { return len(rel.router.PoolMembers()) == 0 })
}

func TestServer_StopClosesConnections(t *testing.T) {
	rel := newTestRelay(t, nil)
	c := rel.dial(t)
	send(t, c, `{"type":"signaling_request","id":"A"}`)
	rel.waitPool(t, "A")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rel.srv.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want going away", err)
	}
	if rel.srv.Stats().Active != 0 {
		t.Errorf("Active = %d, want 0", rel.srv.Stats().Active)
	}
	if len(rel.router.PoolMembers()) != 0 {
		t.Errorf("pool = %v, want empty", rel.router.PoolMembers())
	}
}

func TestServer_EvaluationPersisted(t *testing.T) {
	rel := newTestRelay(t, nil)
	path := filepath.Join(t.TempDir(), "evaluation.json")
	fl, err := evaluation.NewFlusher(rel.log, time.Hour, []evaluation.Sink{evaluation.NewFileSink(path)}, nil)
	if err != nil {
		t.Fatalf("NewFlusher() error = %v", err)
	}

	c := rel.dial(t)
	send(t, c, `{"type":"evaluation","id":"A","location":{"x":1}}`)
	send(t, c, `{"type":"evaluation","location":{"x":2}}`)
	waitFor(t, "evaluations", func() bool { return rel.router.Stats().Evaluations == 2 })

	if err := fl.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var got map[string]map[string]struct{ X int }
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Both reports normally land in the same second; the later one wins.
	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	last := got[keys[len(keys)-1]]["A"].X
	if last != 2 {
		t.Errorf("latest location x = %d, want 2 (file %s)", last, data)
	}
}
