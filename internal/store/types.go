package store

import (
	"context"
	"errors"
	"time"
)

// Kind selects one of the two per-session logs.
type Kind string

const (
	KindEvents Kind = "events"
	KindAudio  Kind = "audio"
)

// DefaultInputLang is reported when a session has no explicit input language.
const DefaultInputLang = "AUTO"

// DefaultTTL bounds how long an abandoned session survives.
const DefaultTTL = 4 * time.Hour

var (
	ErrNotFound     = errors.New("session not found")
	ErrUnavailable  = errors.New("session store unavailable")
	ErrInvalidInput = errors.New("invalid store input")
	ErrInvalidKind  = errors.New("invalid log kind")
)

// Entry is one immutable log record. Exactly one of Text or Data is set.
type Entry struct {
	Timestamp   int64  `json:"t"`
	Text        string `json:"text,omitempty"`
	Data        []byte `json:"data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Meta is the session metadata record. ID is fresh on every CreateSession, so
// two sessions that reuse a code never share it.
type Meta struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	InputLang      string    `json:"input_lang"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Store owns all persisted session state: metadata plus an event log and an
// audio log per session code, all expiring together.
type Store interface {
	// CreateSession writes fresh metadata, with a new Meta.ID, and clears
	// both logs for code.
	CreateSession(ctx context.Context, code, inputLang string) error
	// EndSession deletes metadata and both logs. Returns ErrNotFound if absent.
	EndSession(ctx context.Context, code string) error
	Session(ctx context.Context, code string) (Meta, error)
	Sessions(ctx context.Context) ([]Meta, error)

	SetInputLang(ctx context.Context, code, lang string) error
	InputLang(ctx context.Context, code string) (string, error)

	// Append adds entry to the kind log and returns the new log length.
	// It never creates a session: an absent code yields ErrNotFound.
	Append(ctx context.Context, code string, kind Kind, entry Entry) (int, error)
	// ReadRange returns entries in [from, to). A negative to means the end of the log.
	ReadRange(ctx context.Context, code string, kind Kind, from, to int) ([]Entry, error)
	// Length returns the current entry count, or ErrNotFound if the session is absent.
	Length(ctx context.Context, code string, kind Kind) (int, error)

	Close() error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Purger is implemented by stores without native key expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

func (k Kind) Valid() bool {
	return k == KindEvents || k == KindAudio
}

// ParseKind maps a query value to a Kind, defaulting to KindEvents.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindEvents, nil
	case KindEvents, KindAudio:
		return Kind(s), nil
	default:
		return "", ErrInvalidKind
	}
}

func normalizeLang(lang string) string {
	if lang == "" {
		return DefaultInputLang
	}
	return lang
}

func checkArgs(code string, kind Kind) error {
	if code == "" {
		return ErrInvalidInput
	}
	if !kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// clampRange resolves [from, to) against a log of length n.
func clampRange(from, to, n int) (int, int) {
	if from < 0 {
		from = 0
	}
	if to < 0 || to > n {
		to = n
	}
	if from > to {
		from = to
	}
	return from, to
}
