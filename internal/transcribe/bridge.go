package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const eventQueueDepth = 256

// liveConn is the slice of the provider client the bridge depends on.
type liveConn interface {
	Connect() bool
	Write(p []byte) (int, error)
	Stop()
}

type dialFunc func(ctx context.Context) (liveConn, error)

// BridgeConfig carries the tunables for one provider connection.
type BridgeConfig struct {
	APIKey           string
	Language         string
	ReconnectTimeout time.Duration
	StopTimeout      time.Duration
	Logger           *log.Logger
}

// Bridge maintains one persistent streaming connection to the speech-to-text
// provider. Audio goes in via Send in arrival order; transcript events come
// out on Events. An unexpected connection drop is retried exactly once; a
// failed reconnect surfaces a fatal ConnectError on Err.
type Bridge struct {
	cfg  BridgeConfig
	dial dialFunc

	events chan Event
	errs   chan error

	mu              sync.Mutex
	conn            liveConn
	lastFinalOffset float64

	stopOnce sync.Once
	stopC    chan struct{}
}

func NewBridge(cfg BridgeConfig) *Bridge {
	b := newBridge(cfg, nil)
	b.dial = dialDeepgram(cfg, b)
	return b
}

func newBridge(cfg BridgeConfig, dial dialFunc) *Bridge {
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = 10 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Bridge{
		cfg:    cfg,
		dial:   dial,
		events: make(chan Event, eventQueueDepth),
		errs:   make(chan error, 1),
		stopC:  make(chan struct{}),
	}
}

// Start opens the provider connection. The connection stays up for the
// session's lifetime.
func (b *Bridge) Start(ctx context.Context) error {
	conn, err := b.connect(ctx)
	if err != nil {
		return &ConnectError{Err: err}
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.cfg.Logger.Info("transcription connected", "language", b.cfg.Language)
	return nil
}

// Send forwards one audio chunk to the provider. Errors are transient (the
// connection may be mid-reconnect) and do not end the session.
func (b *Bridge) Send(data []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.New("bridge not connected")
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Events is the stream of transcript events.
func (b *Bridge) Events() <-chan Event { return b.events }

// Err surfaces fatal bridge errors.
func (b *Bridge) Err() <-chan error { return b.errs }

// Stop signals end-of-audio to the provider and closes the connection,
// bounded by the stop timeout.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopC)
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		done := make(chan struct{})
		go func() {
			conn.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(b.cfg.StopTimeout):
			b.cfg.Logger.Warn("transcription stop timed out, abandoning connection")
		}
	})
}

// onTranscript is called by the provider adapter for every transcript
// message. Final offsets are clamped to be non-decreasing.
func (b *Bridge) onTranscript(text string, offset float64, final bool) {
	if text == "" {
		return
	}
	if final {
		b.mu.Lock()
		if offset < b.lastFinalOffset {
			offset = b.lastFinalOffset
		} else {
			b.lastFinalOffset = offset
		}
		b.mu.Unlock()
	}

	select {
	case b.events <- Event{Text: text, Offset: offset, Final: final}:
	case <-b.stopC:
	}
}

// onDrop is called by the provider adapter when the connection closes
// unexpectedly. One reconnection is attempted; failure is fatal.
func (b *Bridge) onDrop() {
	select {
	case <-b.stopC:
		return
	default:
	}

	b.cfg.Logger.Warn("transcription connection dropped, reconnecting")

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ReconnectTimeout)
	defer cancel()

	conn, err := b.connect(ctx)
	if err != nil {
		b.fatal(&ConnectError{Err: fmt.Errorf("reconnect failed: %w", err)})
		return
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.cfg.Logger.Info("transcription reconnected")
}

func (b *Bridge) connect(ctx context.Context) (liveConn, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	if ok := conn.Connect(); !ok {
		return nil, errors.New("provider refused connection")
	}
	return conn, nil
}

func (b *Bridge) fatal(err error) {
	select {
	case b.errs <- err:
	default:
	}
}
