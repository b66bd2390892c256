package session

// EventVersion is bumped when the wire format changes incompatibly.
const EventVersion = 1

// Event is the envelope shared by every session event sent to the sink.
// Timestamp is seconds elapsed since the session started.
type Event struct {
	Type      string  `json:"type"`
	Version   int     `json:"version"`
	Timestamp float64 `json:"timestamp"`
}

// ConnectionEvent acknowledges the transport connection itself. Emitted by
// the event sink's transport when the client attaches, before any session
// exists.
type ConnectionEvent struct {
	Event
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewConnectionEvent builds the acknowledgement sent on client attach.
func NewConnectionEvent() ConnectionEvent {
	return ConnectionEvent{
		Event:   newEvent("connection", 0),
		Status:  "connected",
		Message: "websocket connection established",
	}
}

// StatusEvent reports a lifecycle transition so the client can render
// progress ("starting", "extracting", "processing", "streaming", "stopped").
type StatusEvent struct {
	Event
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TranscriptEvent carries one transcript update. Partial events may be
// superseded by a later final for the same window.
type TranscriptEvent struct {
	Event
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// FeedbackEvent carries AI-generated learning feedback for the most recent
// transcript window.
type FeedbackEvent struct {
	Event
	Content string `json:"content"`
}

// SummaryEvent carries the end-of-session summary. Emitted at most once,
// after all other event kinds have stopped.
type SummaryEvent struct {
	Event
	Content string `json:"content"`
}

// ErrorEvent reports a session error to the client. Fatal errors are always
// followed by teardown; non-fatal ones (a single failed feedback call) are
// reported and streaming continues.
type ErrorEvent struct {
	Event
	Message string `json:"message"`
}

// NewControlErrorEvent reports a rejected control request. It carries no
// elapsed-time basis because it may predate any session.
func NewControlErrorEvent(message string) ErrorEvent {
	return newErrorEvent(0, message)
}

func newEvent(kind string, elapsed float64) Event {
	return Event{Type: kind, Version: EventVersion, Timestamp: elapsed}
}

func newStatusEvent(elapsed float64, status, message string) StatusEvent {
	return StatusEvent{Event: newEvent("status", elapsed), Status: status, Message: message}
}

func newTranscriptEvent(elapsed float64, text string, final bool) TranscriptEvent {
	return TranscriptEvent{Event: newEvent("transcript", elapsed), Text: text, Final: final}
}

func newFeedbackEvent(elapsed float64, content string) FeedbackEvent {
	return FeedbackEvent{Event: newEvent("feedback", elapsed), Content: content}
}

func newSummaryEvent(elapsed float64, content string) SummaryEvent {
	return SummaryEvent{Event: newEvent("summary", elapsed), Content: content}
}

func newErrorEvent(elapsed float64, message string) ErrorEvent {
	return ErrorEvent{Event: newEvent("error", elapsed), Message: message}
}
