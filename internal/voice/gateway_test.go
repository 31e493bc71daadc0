package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	g := NewGateway(GatewayOptions{
		WorkerTokens: map[string]string{"w1": "worker-secret"},
		ControlToken: "control-secret",
		RecordDir:    t.TempDir(),
		PingInterval: time.Second,
		StopTimeout:  2 * time.Second,
	}, logger.NewNop())
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, srv
}

func dial(t *testing.T, srv *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
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

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Errorf("read envelope: %v", err)
	}
	return env
}

func TestGatewayRejectsBadToken(t *testing.T) {
	_, srv := newTestGateway(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	tcs := map[string]struct {
		path   string
		status int
	}{
		"control wrong token": {path: "/bridge/control?token=nope", status: http.StatusUnauthorized},
		"worker wrong token":  {path: "/bridge/worker/w1?token=control-secret", status: http.StatusUnauthorized},
		"unknown worker":      {path: "/bridge/worker/w9?token=worker-secret", status: http.StatusNotFound},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(base+tc.path, nil)
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %v", tc.status, resp)
			}
		})
	}
}

func TestGatewayVoiceEvents(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "/bridge/control", "control-secret")

	err := conn.WriteJSON(envelope{Type: msgVoiceState, Event: &Event{
		MemberID:     "u1",
		MemberName:   "Alice",
		AfterChannel: "lobby",
	}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-g.Events():
		if ev.MemberID != "u1" || ev.AfterChannel != "lobby" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.At.IsZero() {
			t.Fatal("expected event time to be filled in")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	name, ok := g.DisplayName("u1")
	if !ok || name != "Alice" {
		t.Fatalf("expected Alice, got %q (%v)", name, ok)
	}
}

func TestGatewayCreateSession(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "/bridge/control", "control-secret")
	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.control != nil
	})

	go func() {
		req := readEnvelope(t, conn)
		if req.Type != msgCreateSession || req.Name != "meeting-101500" || req.InitiatorID != "u1" {
			conn.WriteJSON(envelope{Type: msgReply, RequestID: req.RequestID, Error: "bad request"})
			return
		}
		conn.WriteJSON(envelope{Type: msgReply, RequestID: req.RequestID, ChannelID: "vc-42"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	channelID, err := g.CreateSession(ctx, "meeting-101500", "u1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if channelID != "vc-42" {
		t.Fatalf("expected vc-42, got %s", channelID)
	}
}

func TestGatewayCreateSessionBridgeError(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "/bridge/control", "control-secret")
	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.control != nil
	})

	go func() {
		req := readEnvelope(t, conn)
		conn.WriteJSON(envelope{Type: msgReply, RequestID: req.RequestID, Error: "missing permissions"})
	}()

	_, err := g.CreateSession(context.Background(), "meeting-101500", "u1")
	if err == nil || !strings.Contains(err.Error(), "missing permissions") {
		t.Fatalf("expected bridge error, got %v", err)
	}
}

func TestGatewayRequestTimeout(t *testing.T) {
	g, srv := newTestGateway(t)
	g.opts.RequestTimeout = 100 * time.Millisecond
	conn := dial(t, srv, "/bridge/control", "control-secret")
	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.control != nil
	})

	// the bridge reads the request and never answers
	go func() {
		var env envelope
		conn.ReadJSON(&env)
	}()

	start := time.Now()
	_, err := g.OpenThread(context.Background(), "Meeting", "started")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("request took %s, want about 100ms", elapsed)
	}

	g.mu.Lock()
	pending := len(g.pending)
	g.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected no pending requests, got %d", pending)
	}
}

func TestGatewayReplyWithFullEventBuffer(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "/bridge/control", "control-secret")
	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.control != nil
	})

	total := cap(g.events) + 50
	for i := 0; i < total; i++ {
		err := conn.WriteJSON(envelope{Type: msgVoiceState, Event: &Event{MemberID: "u1", AfterChannel: "lobby"}})
		if err != nil {
			t.Fatalf("write event %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return len(g.events) == cap(g.events) })

	go func() {
		req := readEnvelope(t, conn)
		conn.WriteJSON(envelope{Type: msgReply, RequestID: req.RequestID, ChannelID: "vc-7"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	channelID, err := g.CreateSession(ctx, "meeting", "u1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if channelID != "vc-7" {
		t.Fatalf("expected vc-7, got %s", channelID)
	}

	for i := 0; i < total; i++ {
		select {
		case <-g.Events():
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", i, total)
		}
	}
}

func TestGatewayWithoutControl(t *testing.T) {
	g, _ := newTestGateway(t)

	if _, err := g.CreateSession(context.Background(), "m", "u1"); !models.IsRetryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if err := g.Notify(context.Background(), "t1", "hello"); !models.IsRetryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if g.Capture("w1").Connected() {
		t.Fatal("worker should not be connected")
	}
	if _, err := g.Capture("w1").StartRecording(context.Background(), "vc"); err == nil {
		t.Fatal("expected StartRecording to fail without a bridge")
	}
}

func TestGatewayRecording(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "/bridge/worker/w1", "worker-secret")
	capture := g.Capture("w1")
	waitFor(t, capture.Connected)

	sent := make(chan struct{})
	go func() {
		start := readEnvelope(t, conn)
		if start.Type != msgStartRecording || start.ChannelID != "vc-1" {
			t.Errorf("unexpected start message %+v", start)
		}
		conn.WriteMessage(websocket.BinaryMessage, encodeAudioFrame("u1", []byte("aaa")))
		conn.WriteMessage(websocket.BinaryMessage, encodeAudioFrame("u2", []byte("bb")))
		conn.WriteMessage(websocket.BinaryMessage, encodeAudioFrame("u1", []byte("a")))
		close(sent)

		stop := readEnvelope(t, conn)
		if stop.Type != msgStopRecording || stop.RecordingID != start.RecordingID {
			t.Errorf("unexpected stop message %+v", stop)
		}
		conn.WriteJSON(envelope{Type: msgRecordingStopped, RecordingID: start.RecordingID})
	}()

	rec, err := capture.StartRecording(context.Background(), "vc-1")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := capture.StartRecording(context.Background(), "vc-2"); err == nil {
		t.Fatal("expected second recording on the same worker to fail")
	}

	<-sent
	rec.Stop()
	rec.Stop()

	var res CaptureResult
	select {
	case res = <-rec.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("recording did not finish")
	}
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %v", res.Tracks)
	}
	data, err := os.ReadFile(res.Tracks["u1"])
	if err != nil {
		t.Fatalf("read track: %v", err)
	}
	if string(data) != "aaaa" {
		t.Fatalf("expected u1 audio aaaa, got %q", data)
	}

	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.recordings["w1"] == nil
	})
}

func TestGatewayRecordingBridgeDrop(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "/bridge/worker/w1", "worker-secret")
	capture := g.Capture("w1")
	waitFor(t, capture.Connected)

	go func() {
		readEnvelope(t, conn)
		conn.WriteMessage(websocket.BinaryMessage, encodeAudioFrame("u1", []byte("abc")))
		conn.Close()
	}()

	rec, err := capture.StartRecording(context.Background(), "vc-1")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	select {
	case res := <-rec.Done():
		if !errors.Is(res.Err, models.ErrPartialCapture) {
			t.Fatalf("expected partial capture error, got %v", res.Err)
		}
		if _, ok := res.Tracks["u1"]; !ok {
			t.Fatal("expected the captured track to be kept")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("recording did not finish after the bridge dropped")
	}
}

func TestAudioFrame(t *testing.T) {
	frame := encodeAudioFrame("member-1", []byte{1, 2, 3})
	id, audio, ok := decodeAudioFrame(frame)
	if !ok || id != "member-1" || len(audio) != 3 {
		t.Fatalf("unexpected decode %q %v %v", id, audio, ok)
	}
	for _, bad := range [][]byte{nil, {0}, {5, 'a'}} {
		if _, _, ok := decodeAudioFrame(bad); ok {
			t.Fatalf("expected %v to be rejected", bad)
		}
	}
}

func TestEnvelopeJSON(t *testing.T) {
	raw := `{"type":"voice_state","event":{"member_id":"u1","before":"a","after":""}}`
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event == nil || env.Event.BeforeChannel != "a" || env.Event.AfterChannel != "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
