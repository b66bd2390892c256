package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/jaehoon-kim/lectern/internal/session"
)

type fakeSession struct {
	sink     session.Sink
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	url string
}

func newFakeSession(sink session.Sink) *fakeSession {
	return &fakeSession{sink: sink, done: make(chan struct{})}
}

func (s *fakeSession) Start(ctx context.Context, videoURL string) error {
	s.starts.Add(1)
	s.mu.Lock()
	s.url = videoURL
	s.mu.Unlock()
	return s.startErr
}

func (s *fakeSession) Stop() {
	s.stops.Add(1)
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

type sessionRecorder struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (r *sessionRecorder) factory(sink session.Sink) Session {
	s := newFakeSession(sink)
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
	return s
}

func (r *sessionRecorder) latest(t *testing.T) *fakeSession {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.sessions)
		var s *fakeSession
		if n > 0 {
			s = r.sessions[n-1]
		}
		r.mu.Unlock()
		if s != nil {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no session was created")
	return nil
}

func dialWS(t *testing.T, recorder *sessionRecorder) *websocket.Conn {
	t.Helper()
	h := Handler(Deps{Sessions: recorder.factory, Logger: log.New(io.Discard)})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return payload
}

func TestWSConnectionAcknowledged(t *testing.T) {
	conn := dialWS(t, &sessionRecorder{})

	payload := readEvent(t, conn)
	if payload["type"] != "connection" {
		t.Fatalf("expected connection event first, got %#v", payload)
	}
	if payload["status"] != "connected" {
		t.Fatalf("unexpected status: %#v", payload["status"])
	}
}

func TestWSStartCreatesSession(t *testing.T) {
	recorder := &sessionRecorder{}
	conn := dialWS(t, recorder)
	readEvent(t, conn) // connection ack

	if err := conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=abc"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s := recorder.latest(t)
	deadline := time.Now().Add(time.Second)
	for s.starts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.starts.Load() != 1 {
		t.Fatal("expected session start")
	}
	s.mu.Lock()
	url := s.url
	s.mu.Unlock()
	if url != "https://youtube.com/watch?v=abc" {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestWSSessionEventsReachClient(t *testing.T) {
	recorder := &sessionRecorder{}
	conn := dialWS(t, recorder)
	readEvent(t, conn)

	if err := conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=abc"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	s := recorder.latest(t)

	// Events emitted through the session's sink arrive as JSON frames.
	s.sink.Emit(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "transcript", Text: "hello"})

	payload := readEvent(t, conn)
	if payload["type"] != "transcript" || payload["text"] != "hello" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestWSStartWithoutURL(t *testing.T) {
	recorder := &sessionRecorder{}
	conn := dialWS(t, recorder)
	readEvent(t, conn)

	if err := conn.WriteJSON(map[string]string{"action": "start"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	payload := readEvent(t, conn)
	if payload["type"] != "error" {
		t.Fatalf("expected error event, got %#v", payload)
	}
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "url") {
		t.Fatalf("expected url complaint, got %#v", payload["message"])
	}
}

func TestWSMalformedControl(t *testing.T) {
	conn := dialWS(t, &sessionRecorder{})
	readEvent(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	payload := readEvent(t, conn)
	if payload["type"] != "error" {
		t.Fatalf("expected error event, got %#v", payload)
	}
}

func TestWSUnknownAction(t *testing.T) {
	conn := dialWS(t, &sessionRecorder{})
	readEvent(t, conn)

	if err := conn.WriteJSON(map[string]string{"action": "rewind"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	payload := readEvent(t, conn)
	if payload["type"] != "error" {
		t.Fatalf("expected error event, got %#v", payload)
	}
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "rewind") {
		t.Fatalf("expected the action named in the error, got %#v", payload["message"])
	}
}

func TestWSSecondStartRejectedWhileStreaming(t *testing.T) {
	recorder := &sessionRecorder{}
	conn := dialWS(t, recorder)
	readEvent(t, conn)

	_ = conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=one"})
	recorder.latest(t)

	_ = conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=two"})

	payload := readEvent(t, conn)
	if payload["type"] != "error" {
		t.Fatalf("expected error event for concurrent start, got %#v", payload)
	}
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "already streaming") {
		t.Fatalf("unexpected message: %#v", payload["message"])
	}

	recorder.mu.Lock()
	count := len(recorder.sessions)
	recorder.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected one session, got %d", count)
	}
}

func TestWSStartAfterStopAllowed(t *testing.T) {
	recorder := &sessionRecorder{}
	conn := dialWS(t, recorder)
	readEvent(t, conn)

	_ = conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=one"})
	first := recorder.latest(t)

	_ = conn.WriteJSON(map[string]string{"action": "stop"})
	deadline := time.Now().Add(time.Second)
	for first.stops.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if first.stops.Load() == 0 {
		t.Fatal("expected stop on the first session")
	}

	_ = conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=two"})
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		recorder.mu.Lock()
		count := len(recorder.sessions)
		recorder.mu.Unlock()
		if count == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a second session after the first stopped")
}

func TestWSDisconnectStopsSession(t *testing.T) {
	recorder := &sessionRecorder{}
	conn := dialWS(t, recorder)
	readEvent(t, conn)

	_ = conn.WriteJSON(map[string]string{"action": "start", "url": "https://youtube.com/watch?v=abc"})
	s := recorder.latest(t)

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.stops.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.stops.Load() == 0 {
		t.Fatal("expected session stop after client disconnect")
	}
}

func TestWSSinkDropsWhenQueueFull(t *testing.T) {
	sink := newWSSink(log.New(io.Discard))

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventQueueDepth+10; i++ {
			sink.Emit(map[string]string{"type": "status"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit must never block, even with no consumer")
	}
}
