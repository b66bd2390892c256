package session

import (
	"context"

	"github.com/jaehoon-kim/lectern/internal/media"
	"github.com/jaehoon-kim/lectern/internal/transcribe"
)

// State is the session lifecycle position. Stopped is terminal; a new
// session requires a fresh Orchestrator.
type State int32

const (
	Idle State = iota
	Starting
	Streaming
	Stopping
	Stopped
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// AudioSource acquires the raw audio stream for a video URL. The chunk
// channel closes on natural end of stream, on Stop, or on fatal error;
// Err distinguishes the last case.
type AudioSource interface {
	Start(ctx context.Context, videoURL string) (<-chan media.Chunk, error)
	Err() error
	Stop()
}

// Bridge is the persistent speech-to-text connection.
type Bridge interface {
	Start(ctx context.Context) error
	Send(data []byte) error
	Events() <-chan transcribe.Event
	Err() <-chan error
	Stop()
}

// Generator produces feedback for a transcript window and the final
// session summary.
type Generator interface {
	Feedback(ctx context.Context, window string) (string, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Sink consumes ordered session events. Emit must not block the caller;
// the orchestrator is the single writer for a session, so implementations
// need no ordering logic of their own.
type Sink interface {
	Emit(event any)
}
