package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/jaehoon-kim/lectern/internal/session"
)

const (
	eventQueueDepth        = 256
	disconnectDrainTimeout = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProtocolError reports a malformed control request. The session state is
// unchanged; the client just gets an error event.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

type controlMessage struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// wsSink queues session events for one connection's writer goroutine. The
// orchestrator is the single producer, so queue order is emission order.
// Emit never blocks: a client too slow to drain the queue loses events
// rather than stalling the session.
type wsSink struct {
	logger *log.Logger
	out    chan []byte
}

func newWSSink(logger *log.Logger) *wsSink {
	return &wsSink{logger: logger, out: make(chan []byte, eventQueueDepth)}
}

func (s *wsSink) Emit(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("event marshal failed", "err", err)
		return
	}
	select {
	case s.out <- payload:
	default:
		s.logger.Warn("event dropped: client not draining")
	}
}

func registerWSRoute(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Error("ws upgrade failed", "err", err)
			return
		}
		defer func() { _ = conn.Close() }()

		sink := newWSSink(deps.Logger)
		sink.Emit(session.NewConnectionEvent())

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var current Session

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			for {
				select {
				case payload := <-sink.out:
					if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return fmt.Errorf("write event: %w", err)
					}
				case <-gctx.Done():
					return nil
				}
			}
		})

		// Unblock the blocking read when the writer fails.
		g.Go(func() error {
			<-gctx.Done()
			_ = conn.Close()
			return nil
		})

		g.Go(func() error {
			defer cancel()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return nil // client disconnect
				}
				current = handleControl(gctx, deps, sink, current, data)
			}
		})

		if err := g.Wait(); err != nil {
			deps.Logger.Debug("ws connection closed", "err", err)
		}

		// Client gone: same path as an explicit stop, bounded wait for
		// the session to finish teardown.
		if current != nil {
			current.Stop()
			select {
			case <-current.Done():
			case <-time.After(disconnectDrainTimeout):
				deps.Logger.Warn("session teardown exceeded drain timeout after disconnect")
			}
		}
	})
}

// handleControl applies one control frame and returns the (possibly new)
// active session for the connection.
func handleControl(ctx context.Context, deps Deps, sink *wsSink, current Session, data []byte) Session {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		emitProtocolError(sink, &ProtocolError{Reason: "invalid message format"})
		return current
	}

	switch msg.Action {
	case "start":
		if msg.URL == "" {
			emitProtocolError(sink, &ProtocolError{Reason: "start requires a url"})
			return current
		}
		if current != nil && !finished(current) {
			emitProtocolError(sink, &ProtocolError{Reason: "already streaming"})
			return current
		}
		next := deps.Sessions(sink)
		if err := next.Start(ctx, msg.URL); err != nil {
			emitProtocolError(sink, &ProtocolError{Reason: err.Error()})
			return current
		}
		return next

	case "stop":
		if current != nil {
			current.Stop()
		}
		return current

	default:
		emitProtocolError(sink, &ProtocolError{Reason: fmt.Sprintf("unknown action %q", msg.Action)})
		return current
	}
}

func emitProtocolError(sink *wsSink, err *ProtocolError) {
	sink.Emit(session.NewControlErrorEvent(err.Error()))
}

func finished(s Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}
