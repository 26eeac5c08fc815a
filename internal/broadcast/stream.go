package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/lingocast/internal/observability"
	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/store"
)

// DefaultPollInterval is how often a listener's cursor is compared with the log.
const DefaultPollInterval = 300 * time.Millisecond

var ErrMissingCode = errors.New("missing session code")

// EmitFunc delivers one event to a listener. A non-nil error means the
// listener is gone.
type EmitFunc func(protocol.Event) error

// Streamer replays and tails one session log per listener connection. It
// holds no per-session state: each Run owns its cursor.
type Streamer struct {
	store    store.Store
	interval time.Duration
	metrics  *observability.Metrics
	logger   *log.Logger
	now      func() time.Time
}

func NewStreamer(s store.Store, interval time.Duration, metrics *observability.Metrics, logger *log.Logger) *Streamer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Streamer{
		store:    s,
		interval: interval,
		metrics:  metrics,
		logger:   logger.WithPrefix("broadcast"),
		now:      time.Now,
	}
}

func (s *Streamer) Interval() time.Duration {
	return s.interval
}

// Run streams code's kind log to emit until the session ends, ctx is
// cancelled, or emit fails. It returns nil on session end and on listener
// disconnect. A listener is bound to the session it first sees; if the code
// is re-created under it, the listener gets end instead of the new log.
func (s *Streamer) Run(ctx context.Context, code string, kind store.Kind, emit EmitFunc) error {
	if code == "" {
		return ErrMissingCode
	}
	if !kind.Valid() {
		return store.ErrInvalidKind
	}

	var cur cursor
	done, err := s.poll(ctx, code, kind, &cur, emit)
	if done || err != nil {
		return s.finish(ctx, err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		done, err = s.poll(ctx, code, kind, &cur, emit)
		if done || err != nil {
			return s.finish(ctx, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := s.emit(emit, protocol.Ping(s.now())); err != nil {
			return nil
		}
	}
}

// cursor is one listener's position in one session incarnation.
type cursor struct {
	sessionID string
	bound     bool
	seq       int
}

// poll delivers entries past cur.seq. done reports that the session is gone
// or superseded and the end event has been sent; err is only an emit failure.
// Identity is checked after the reads so entries from a replacement session
// are never delivered.
func (s *Streamer) poll(ctx context.Context, code string, kind store.Kind, cur *cursor, emit EmitFunc) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	started := time.Now()
	defer func() { s.metrics.ObservePoll(time.Since(started)) }()

	if !cur.bound {
		meta, err := s.store.Session(ctx, code)
		if err != nil {
			return s.storeFailure(ctx, code, "session", err, emit)
		}
		cur.sessionID, cur.bound = meta.ID, true
	}

	n, err := s.store.Length(ctx, code, kind)
	if err != nil {
		return s.storeFailure(ctx, code, "length", err, emit)
	}
	var entries []store.Entry
	if n > cur.seq {
		entries, err = s.store.ReadRange(ctx, code, kind, cur.seq, n)
		if err != nil {
			return s.storeFailure(ctx, code, "read_range", err, emit)
		}
	}

	meta, err := s.store.Session(ctx, code)
	if err != nil {
		return s.storeFailure(ctx, code, "session", err, emit)
	}
	if meta.ID != cur.sessionID || n < cur.seq {
		s.logger.Debug("session superseded", "code", code, "seq", cur.seq)
		return true, s.emit(emit, protocol.End(s.now()))
	}

	now := s.now()
	for _, e := range entries {
		ev := protocol.Line(cur.seq, e.Timestamp, e.Text)
		if len(e.Data) > 0 {
			ev = protocol.AudioLine(cur.seq, e.Timestamp, e.Data, e.ContentType)
		}
		if err := s.emit(emit, ev); err != nil {
			return false, err
		}
		if e.Timestamp > 0 {
			s.metrics.ObserveLatency(observability.StageDeliveryLag, now.Sub(time.UnixMilli(e.Timestamp)))
		}
		cur.seq++
	}
	return false, nil
}

func (s *Streamer) storeFailure(ctx context.Context, code, op string, err error, emit EmitFunc) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if errors.Is(err, store.ErrNotFound) {
		return true, s.emit(emit, protocol.End(s.now()))
	}
	s.metrics.ObserveStoreError(op)
	s.logger.Warn("stream poll failed", "code", code, "op", op, "err", err)
	return false, s.emit(emit, protocol.Error(s.now(), err))
}

func (s *Streamer) emit(emit EmitFunc, ev protocol.Event) error {
	if err := emit(ev); err != nil {
		return err
	}
	s.metrics.ObserveStreamEvent(string(ev.Type))
	return nil
}

// finish maps terminal conditions onto Run's result: session end and
// listener disconnect are both normal.
func (s *Streamer) finish(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == nil {
		s.logger.Debug("listener write failed", "err", err)
	}
	return nil
}
