package session

import "errors"

// ErrAlreadyStarted is returned by Start when the orchestrator has already
// been started. One session per orchestrator; a concurrent start request is
// rejected, not queued.
var ErrAlreadyStarted = errors.New("session already started")
