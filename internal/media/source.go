package media

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

const (
	chunkQueueDepth = 8
	killGracePeriod = 5 * time.Second
)

// SourceConfig carries the tunables for one audio source.
type SourceConfig struct {
	FFmpegPath     string
	ChunkDuration  time.Duration
	ChunkOverlap   float64
	StartupTimeout time.Duration
	Logger         *log.Logger
}

// Source owns a single ffmpeg process that decodes a resolved stream URL to
// raw PCM and slices it into fixed-duration chunks. Chunks overlap by a
// configurable fraction so speech at chunk boundaries is not lost.
//
// Delivery is over a bounded channel: a slow consumer blocks production
// rather than dropping audio.
type Source struct {
	cfg      SourceConfig
	resolver *Resolver

	mu             sync.Mutex
	cmd            *exec.Cmd
	err            error
	startupExpired bool

	stopOnce sync.Once
	stopC    chan struct{}
}

func NewSource(cfg SourceConfig, resolver *Resolver) *Source {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = 3 * time.Second
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap > 0.5 {
		cfg.ChunkOverlap = 0.2
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Source{cfg: cfg, resolver: resolver, stopC: make(chan struct{})}
}

// Start resolves the video URL and launches the transcoding process. The
// returned channel closes when the stream ends, the source is stopped, or a
// fatal error occurs; Err reports the failure after the channel closes.
func (s *Source) Start(ctx context.Context, videoURL string) (<-chan Chunk, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	streamURL, err := s.resolver.ResolveStreamURL(resolveCtx, videoURL)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(s.cfg.FFmpegPath,
		"-i", streamURL,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-f", "s16le",
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &AcquisitionError{Reason: "open transcoder pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &AcquisitionError{Reason: "start transcoder", Err: err}
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	s.cfg.Logger.Info("transcoder started", "chunk", s.cfg.ChunkDuration, "overlap", s.cfg.ChunkOverlap)

	out := make(chan Chunk, chunkQueueDepth)
	go s.pump(stdout, out)
	return out, nil
}

// Err returns the fatal acquisition error, if any, once the chunk channel
// has closed. A nil result means the stream ended naturally or was stopped.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop terminates the transcoding process and releases its pipe. Idempotent
// and safe to call while chunks are still being produced.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopC)
		s.terminate()
	})
}

func (s *Source) pump(stdout io.ReadCloser, out chan<- Chunk) {
	defer close(out)

	chunkBytes := int(s.cfg.ChunkDuration.Seconds() * BytesPerSecond)
	stepBytes := chunkBytes - int(float64(chunkBytes)*s.cfg.ChunkOverlap)
	if stepBytes <= 0 {
		stepBytes = chunkBytes
	}

	startup := time.AfterFunc(s.cfg.StartupTimeout, func() {
		s.mu.Lock()
		s.startupExpired = true
		s.mu.Unlock()
		s.terminate()
	})
	defer startup.Stop()

	var (
		pending []byte
		seq     int
	)
	buf := make([]byte, 4096)

readLoop:
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for len(pending) >= chunkBytes {
				if seq == 0 {
					startup.Stop()
				}
				if !s.deliver(out, pending[:chunkBytes], seq, stepBytes) {
					break readLoop
				}
				seq++
				pending = pending[stepBytes:]
			}
		}
		if readErr != nil {
			break
		}
	}

	if len(pending) > 0 && !s.stopping() {
		s.deliver(out, pending, seq, stepBytes)
		seq++
	}

	waitErr := s.waitProcess()
	stopped := s.stopping()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.err != nil:
	case stopped:
	case seq == 0 && s.startupExpired:
		s.err = &AcquisitionError{Reason: "no audio output within startup timeout"}
	case seq == 0:
		s.err = &AcquisitionError{Reason: "transcoder exited before producing audio", Err: waitErr}
	case waitErr != nil:
		s.err = &AcquisitionError{Reason: "transcoder exited unexpectedly", Err: waitErr}
	}
}

func (s *Source) deliver(out chan<- Chunk, data []byte, seq, stepBytes int) bool {
	chunk := Chunk{
		Data:   append([]byte(nil), data...),
		Seq:    seq,
		Offset: float64(seq*stepBytes) / BytesPerSecond,
	}
	select {
	case out <- chunk:
		return true
	case <-s.stopC:
		return false
	}
}

func (s *Source) waitProcess() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	return cmd.Wait()
}

func (s *Source) terminate() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.cfg.Logger.Debug("transcoder signal failed", "err", err)
	}
	// Escalate if the process ignores SIGTERM mid-write.
	time.AfterFunc(killGracePeriod, func() {
		_ = cmd.Process.Kill()
	})
}

func (s *Source) stopping() bool {
	select {
	case <-s.stopC:
		return true
	default:
		return false
	}
}
