package transcribe

import "fmt"

// Event is one transcript update from the speech-to-text provider. Partial
// events may be superseded by a later final event for the same window; only
// final events are authoritative.
type Event struct {
	Text   string  `json:"text"`
	Offset float64 `json:"offset"`
	Final  bool    `json:"final"`
}

// ConnectError reports that the provider connection failed twice in a row.
// It is fatal for the session.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transcription connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
