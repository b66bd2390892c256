package media

import "fmt"

// Audio format contract shared with the transcription provider:
// mono, 16 kHz, 16-bit signed little-endian PCM.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
	BytesPerSecond = SampleRate * Channels * BytesPerSample
)

// Chunk is a fixed-size buffer of raw decoded audio. Seq is the production
// order; Offset is the approximate elapsed time of the chunk's first sample
// in seconds from stream start.
type Chunk struct {
	Data   []byte
	Seq    int
	Offset float64
}

// AcquisitionError reports a fatal failure to resolve or decode the source
// audio. It is not retried; acquisition failure ends the session.
type AcquisitionError struct {
	Reason string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio acquisition: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio acquisition: %s", e.Reason)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
