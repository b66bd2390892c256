package server

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/jaehoon-kim/lectern/internal/media"
	"github.com/jaehoon-kim/lectern/internal/session"
)

// Session is the slice of the orchestrator the connection handler drives.
type Session interface {
	Start(ctx context.Context, videoURL string) error
	Stop()
	Done() <-chan struct{}
}

// SessionFactory builds a fresh orchestrator bound to the given sink.
// Stopped orchestrators are terminal, so every start request gets a new one.
type SessionFactory func(sink session.Sink) Session

// VideoResolver answers the metadata endpoints.
type VideoResolver interface {
	Info(ctx context.Context, videoURL string) (media.VideoInfo, error)
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Sessions SessionFactory
	Resolver VideoResolver
	Logger   *log.Logger
}

// Handler builds the HTTP handler: the /ws session endpoint and the
// /api video helpers.
func Handler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	mux := http.NewServeMux()
	registerWSRoute(mux, deps)
	registerAPIRoutes(mux, deps)
	return mux
}
