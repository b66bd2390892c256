package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jaehoon-kim/lectern/internal/media"
)

// Config carries the orchestrator tunables. Zero values fall back to the
// documented defaults.
type Config struct {
	FeedbackThreshold int           // buffered chars that force a feedback request
	FeedbackInterval  time.Duration // max idle time between feedback requests
	FeedbackMinChars  int           // floor below which idle triggers are skipped
	ShutdownTimeout   time.Duration // budget for the whole stop sequence
	Logger            *log.Logger
}

// Orchestrator owns one streaming session: it starts and stops the audio
// source, the transcription bridge, and the feedback engine, and multiplexes
// their asynchronous outputs into a single ordered event stream toward the
// sink. A single event-loop goroutine owns the accumulator and all trigger
// decisions, so no event kind can interleave out of order.
type Orchestrator struct {
	cfg    Config
	source AudioSource
	bridge Bridge
	engine Generator
	sink   Sink

	state     atomic.Int32
	startedAt time.Time
	acc       *Accumulator

	stopOnce sync.Once
	stopC    chan struct{}
	done     chan struct{}
}

func New(cfg Config, source AudioSource, bridge Bridge, engine Generator, sink Sink) *Orchestrator {
	if cfg.FeedbackThreshold <= 0 {
		cfg.FeedbackThreshold = 400
	}
	if cfg.FeedbackInterval <= 0 {
		cfg.FeedbackInterval = 25 * time.Second
	}
	if cfg.FeedbackMinChars < 0 {
		cfg.FeedbackMinChars = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		source: source,
		bridge: bridge,
		engine: engine,
		sink:   sink,
		acc:    NewAccumulator(),
		stopC:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Start begins a session for the given video URL. It returns
// ErrAlreadyStarted if the orchestrator was started before; a session is
// never restarted in place.
func (o *Orchestrator) Start(ctx context.Context, videoURL string) error {
	if !o.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		return ErrAlreadyStarted
	}
	o.startedAt = time.Now()
	o.emit(newStatusEvent(0, "starting", "starting session"))
	go o.run(ctx, videoURL)
	return nil
}

// Stop requests teardown. Idempotent: the second and later calls are no-ops
// and the teardown sequence runs exactly once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopC) })
}

// Done closes once the session has reached Stopped.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) run(ctx context.Context, videoURL string) {
	defer close(o.done)

	o.emit(newStatusEvent(o.elapsed(), "extracting", "resolving audio stream"))

	chunks, err := o.source.Start(ctx, videoURL)
	if err != nil {
		o.failBeforeStreaming(err)
		return
	}

	// The provider connection is paid; do not open it until the source has
	// proven it can produce audio.
	var first media.Chunk
	select {
	case chunk, ok := <-chunks:
		if !ok {
			err := o.source.Err()
			if err == nil {
				err = errors.New("audio stream ended before producing audio")
			}
			o.failBeforeStreaming(err)
			return
		}
		first = chunk
	case <-o.stopC:
		o.stopBeforeStreaming()
		return
	case <-ctx.Done():
		o.stopBeforeStreaming()
		return
	}

	o.emit(newStatusEvent(o.elapsed(), "processing", "audio acquired, connecting transcription"))

	if err := o.bridge.Start(ctx); err != nil {
		o.source.Stop()
		o.failBeforeStreaming(err)
		return
	}

	o.state.Store(int32(Streaming))
	o.emit(newStatusEvent(o.elapsed(), "streaming", "session active"))

	pumpDone := make(chan error, 1)
	go func() { pumpDone <- o.pump(first, chunks) }()

	o.loop(ctx, pumpDone)
}

// pump forwards audio chunks to the bridge in production order. Send errors
// are transient (the bridge may be mid-reconnect) and never end the session;
// only a fatal source error does, reported through the return value.
func (o *Orchestrator) pump(first media.Chunk, chunks <-chan media.Chunk) error {
	if err := o.bridge.Send(first.Data); err != nil {
		o.cfg.Logger.Debug("audio send failed", "seq", first.Seq, "err", err)
	}
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return o.source.Err()
			}
			if err := o.bridge.Send(chunk.Data); err != nil {
				o.cfg.Logger.Debug("audio send failed", "seq", chunk.Seq, "err", err)
			}
		case <-o.stopC:
			return nil
		}
	}
}

type feedbackResult struct {
	content string
	err     error
}

func (o *Orchestrator) loop(ctx context.Context, pumpDone chan error) {
	events := o.bridge.Events()
	results := make(chan feedbackResult, 1)
	inFlight := false
	lastTrigger := time.Now()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// At most one feedback request in flight per session. Text arriving
	// while a request is outstanding stays in the accumulator and merges
	// into the next request.
	trigger := func() {
		if inFlight || o.acc.Chars() < o.cfg.FeedbackMinChars || o.acc.Chars() == 0 {
			return
		}
		window := o.acc.Flush()
		inFlight = true
		lastTrigger = time.Now()
		go func() {
			content, err := o.engine.Feedback(ctx, window)
			results <- feedbackResult{content: content, err: err}
		}()
	}

	var fatal error
	for fatal == nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.emit(newTranscriptEvent(ev.Offset, ev.Text, ev.Final))
			if ev.Final {
				o.acc.Append(ev.Text)
				if o.acc.Chars() >= o.cfg.FeedbackThreshold {
					trigger()
				}
			}

		case err := <-o.bridge.Err():
			fatal = err

		case res := <-results:
			inFlight = false
			o.emitFeedbackResult(res)
			if o.acc.Chars() >= o.cfg.FeedbackThreshold {
				trigger()
			}

		case err := <-pumpDone:
			pumpDone = nil
			if err != nil {
				fatal = err
			} else {
				// Natural end of stream: same path as an explicit stop.
				o.Stop()
			}

		case <-ticker.C:
			if time.Since(lastTrigger) >= o.cfg.FeedbackInterval {
				trigger()
			}

		case <-o.stopC:
			o.teardown(pumpDone, results, inFlight, nil)
			return

		case <-ctx.Done():
			o.teardown(pumpDone, results, inFlight, nil)
			return
		}
	}

	o.cfg.Logger.Error("session failed", "err", fatal)
	o.state.Store(int32(Errored))
	o.emit(newErrorEvent(o.elapsed(), fatal.Error()))
	o.teardown(pumpDone, results, inFlight, fatal)
}

// teardown runs the stop sequence: stop source and bridge, drain the pump
// and any in-flight feedback, then request the summary (skipped after a
// fatal source/bridge failure). Every wait shares one shutdown budget so
// the session always reaches Stopped.
func (o *Orchestrator) teardown(pumpDone chan error, results chan feedbackResult, inFlight bool, fatal error) {
	o.Stop()
	if o.State() != Errored {
		o.state.Store(int32(Stopping))
	}

	// One absolute deadline for the whole sequence. Each wait re-arms its
	// own timer against it; a consumed timer must not starve a later wait.
	deadline := time.Now().Add(o.cfg.ShutdownTimeout)

	o.source.Stop()
	o.bridge.Stop()

	if pumpDone != nil {
		select {
		case <-pumpDone:
		case <-time.After(time.Until(deadline)):
			o.cfg.Logger.Warn("audio pump did not stop within shutdown budget")
		}
	}

	if inFlight {
		select {
		case res := <-results:
			o.emitFeedbackResult(res)
		case <-time.After(time.Until(deadline)):
			o.cfg.Logger.Warn("in-flight feedback abandoned at shutdown")
		}
	}

	if fatal == nil {
		o.summarize(deadline)
	}

	o.state.Store(int32(Stopped))
	o.emit(newStatusEvent(o.elapsed(), "stopped", "session ended"))
}

// summarize issues the single end-of-session summary request with the full
// transcript, bounded by what remains of the shutdown deadline. At most one
// summary or summary-error event results; a transcript too short to
// summarize produces neither.
func (o *Orchestrator) summarize(deadline time.Time) {
	resC := make(chan feedbackResult, 1)
	sctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	transcript := o.acc.Transcript()
	go func() {
		content, err := o.engine.Summarize(sctx, transcript)
		resC <- feedbackResult{content: content, err: err}
	}()

	select {
	case res := <-resC:
		if res.err != nil {
			o.cfg.Logger.Error("summary generation failed", "err", res.err)
			o.emit(newErrorEvent(o.elapsed(), "summary generation failed"))
			return
		}
		if res.content != "" {
			o.emit(newSummaryEvent(o.elapsed(), res.content))
		}
	case <-time.After(time.Until(deadline)):
		o.cfg.Logger.Warn("summary abandoned at shutdown")
		o.emit(newErrorEvent(o.elapsed(), "summary timed out"))
	}
}

func (o *Orchestrator) emitFeedbackResult(res feedbackResult) {
	if res.err != nil {
		o.cfg.Logger.Warn("feedback generation failed", "err", res.err)
		o.emit(newErrorEvent(o.elapsed(), "feedback generation failed"))
		return
	}
	if res.content != "" {
		o.emit(newFeedbackEvent(o.elapsed(), res.content))
	}
}

// stopBeforeStreaming handles a stop or disconnect that lands while the
// source is still warming up: nothing has streamed, so there is no summary.
func (o *Orchestrator) stopBeforeStreaming() {
	o.state.Store(int32(Stopping))
	o.source.Stop()
	o.state.Store(int32(Stopped))
	o.emit(newStatusEvent(o.elapsed(), "stopped", "session ended"))
}

// failBeforeStreaming handles fatal startup errors: emit the error, stop
// what is running, and land in Stopped without a summary request.
func (o *Orchestrator) failBeforeStreaming(err error) {
	o.cfg.Logger.Error("session start failed", "err", err)
	o.state.Store(int32(Errored))
	o.emit(newErrorEvent(o.elapsed(), err.Error()))
	o.source.Stop()
	o.state.Store(int32(Stopped))
	o.emit(newStatusEvent(o.elapsed(), "stopped", "session ended"))
}

func (o *Orchestrator) emit(event any) {
	if o.sink != nil {
		o.sink.Emit(event)
	}
}

func (o *Orchestrator) elapsed() float64 {
	return time.Since(o.startedAt).Seconds()
}
