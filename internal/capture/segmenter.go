package capture

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/lingocast/internal/audio"
)

// DefaultSegmentDuration bounds how much audio one uploaded segment holds.
const DefaultSegmentDuration = 5 * time.Second

type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segment is one complete WAV container cut from the capture stream.
type Segment struct {
	Index       int
	Audio       []byte
	ContentType string
	Duration    time.Duration
}

// Sink receives finished segments in order.
type Sink func(ctx context.Context, seg Segment) error

// Segmenter cuts a PCM16LE mono frame stream into fixed-length WAV segments.
// A segment is finalized and handed to the sink before the next one starts
// recording, so every emitted segment is independently decodable.
type Segmenter struct {
	sink       Sink
	sampleRate int
	maxLength  time.Duration
	logger     *log.Logger

	mu    sync.Mutex
	state State
	buf   bytes.Buffer
	index int
}

type Option func(*Segmenter)

func WithSampleRate(rate int) Option {
	return func(s *Segmenter) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

func WithSegmentDuration(d time.Duration) Option {
	return func(s *Segmenter) {
		if d > 0 {
			s.maxLength = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Segmenter) { s.logger = l }
}

func NewSegmenter(sink Sink, opts ...Option) *Segmenter {
	s := &Segmenter{
		sink:       sink,
		sampleRate: audio.DefaultSampleRate,
		maxLength:  DefaultSegmentDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.WithPrefix("capture")
	return s
}

func (s *Segmenter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run consumes frames until the channel closes (stop: the open segment is
// flushed) or ctx is cancelled (the open segment is dropped). The first frame
// starts recording; a segment is rotated when it reaches the configured length
// in samples or when it has been open for that long in wall time.
func (s *Segmenter) Run(ctx context.Context, frames <-chan []byte) error {
	maxBytes := max(audio.PCMBytes(s.maxLength, s.sampleRate), 2)
	timer := time.NewTimer(s.maxLength)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.reset()
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				return s.finalize(ctx, false)
			}
			if s.start() {
				timer.Reset(s.maxLength)
			}
			for len(frame) > 0 {
				room := maxBytes - s.buffered()
				n := min(room, len(frame))
				s.write(frame[:n])
				frame = frame[n:]
				if s.buffered() >= maxBytes {
					if err := s.finalize(ctx, true); err != nil {
						return err
					}
					timer.Reset(s.maxLength)
				}
			}

		case <-timer.C:
			if s.State() == StateRecording {
				if err := s.finalize(ctx, true); err != nil {
					return err
				}
				timer.Reset(s.maxLength)
			}
		}
	}
}

// start moves Idle to Recording and reports whether it did.
func (s *Segmenter) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = StateRecording
	s.buf.Reset()
	return true
}

func (s *Segmenter) write(p []byte) {
	s.mu.Lock()
	s.buf.Write(p)
	s.mu.Unlock()
}

func (s *Segmenter) buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *Segmenter) reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.buf.Reset()
	s.mu.Unlock()
}

// finalize closes the open segment, hands it to the sink, and then either
// restarts recording or returns to Idle. Sink failures are logged; the
// capture keeps going.
func (s *Segmenter) finalize(ctx context.Context, restart bool) error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil
	}
	s.state = StateFinalizing
	pcm := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	idx := s.index
	s.mu.Unlock()

	next := StateIdle
	if restart {
		next = StateRecording
	}
	defer func() {
		s.mu.Lock()
		s.state = next
		s.mu.Unlock()
	}()

	if len(pcm) == 0 {
		return nil
	}
	wav, err := audio.EncodeWAVPCM16LE(pcm, s.sampleRate)
	if err != nil {
		return fmt.Errorf("encode segment %d: %w", idx, err)
	}
	seg := Segment{
		Index:       idx,
		Audio:       wav,
		ContentType: audio.ContentTypeWAV,
		Duration:    audio.PCMDuration(len(pcm), s.sampleRate),
	}
	s.mu.Lock()
	s.index++
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink(ctx, seg); err != nil {
			s.logger.Warn("segment upload failed", "segment", idx, "duration", seg.Duration, "err", err)
		}
	}
	return nil
}
