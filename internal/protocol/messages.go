package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType identifies stream payload variants.
type EventType string

const (
	TypeLine  EventType = "line"
	TypePing  EventType = "ping"
	TypeError EventType = "error"
	TypeEnd   EventType = "end"
)

var (
	ErrUnsupportedType = errors.New("unsupported event type")
	ErrMalformed       = errors.New("malformed request")
)

type Envelope struct {
	Type EventType `json:"type"`
}

// Event is one message delivered to a listener. Only the fields relevant to
// Type are encoded.
type Event struct {
	Type        EventType
	Seq         int
	T           int64
	Text        string
	Data        []byte
	ContentType string
	Error       string
}

type LineEvent struct {
	Type        EventType `json:"type"`
	Seq         int       `json:"seq"`
	T           int64     `json:"t"`
	Text        string    `json:"text,omitempty"`
	Data        []byte    `json:"data,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
}

type PingEvent struct {
	Type EventType `json:"type"`
	T    int64     `json:"t"`
}

type ErrorEvent struct {
	Type  EventType `json:"type"`
	T     int64     `json:"t"`
	Error string    `json:"error"`
}

type EndEvent struct {
	Type EventType `json:"type"`
	T    int64     `json:"t"`
}

func Line(seq int, t int64, text string) Event {
	return Event{Type: TypeLine, Seq: seq, T: t, Text: text}
}

func AudioLine(seq int, t int64, data []byte, contentType string) Event {
	return Event{Type: TypeLine, Seq: seq, T: t, Data: data, ContentType: contentType}
}

func Ping(now time.Time) Event {
	return Event{Type: TypePing, T: now.UnixMilli()}
}

func Error(now time.Time, err error) Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: TypeError, T: now.UnixMilli(), Error: msg}
}

func End(now time.Time) Event {
	return Event{Type: TypeEnd, T: now.UnixMilli()}
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeLine:
		return json.Marshal(LineEvent{Type: e.Type, Seq: e.Seq, T: e.T, Text: e.Text, Data: e.Data, ContentType: e.ContentType})
	case TypePing:
		return json.Marshal(PingEvent{Type: e.Type, T: e.T})
	case TypeError:
		return json.Marshal(ErrorEvent{Type: e.Type, T: e.T, Error: e.Error})
	case TypeEnd:
		return json.Marshal(EndEvent{Type: e.Type, T: e.T})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, e.Type)
	}
}

// ParseEvent decodes a stream payload received by a listener.
func ParseEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeLine:
		var msg LineEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return Event{}, err
		}
		return Event{Type: TypeLine, Seq: msg.Seq, T: msg.T, Text: msg.Text, Data: msg.Data, ContentType: msg.ContentType}, nil
	case TypePing, TypeEnd:
		var msg PingEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return Event{}, err
		}
		return Event{Type: env.Type, T: msg.T}, nil
	case TypeError:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return Event{}, err
		}
		return Event{Type: TypeError, T: msg.T, Error: msg.Error}, nil
	default:
		return Event{}, ErrUnsupportedType
	}
}

// IngestRequest is one operator submission. Exactly one of Text or Data is
// expected; presence is enforced by the ingest gateway.
type IngestRequest struct {
	Code        string `json:"code"`
	Text        string `json:"text,omitempty"`
	Data        []byte `json:"data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (r IngestRequest) IsAudio() bool {
	return len(r.Data) > 0
}

func ParseIngestRequest(raw []byte) (IngestRequest, error) {
	var req IngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return IngestRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(req.Text) != "" && len(req.Data) > 0 {
		return IngestRequest{}, fmt.Errorf("%w: text and data are mutually exclusive", ErrMalformed)
	}
	return req, nil
}

// IngestResponse acknowledges a stored entry.
type IngestResponse struct {
	OK  bool  `json:"ok"`
	Seq int   `json:"seq"`
	T   int64 `json:"t"`
}

// IngestFailure reports a rejected submission; OK is always false and Error
// carries the machine code (MISSING_FIELDS, SESSION_NOT_FOUND, ...).
type IngestFailure struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type CreateSessionRequest struct {
	Code      string `json:"code,omitempty"`
	InputLang string `json:"input_lang,omitempty"`
	Replace   bool   `json:"replace,omitempty"`
}

type SessionResponse struct {
	Code           string    `json:"code"`
	InputLang      string    `json:"input_lang"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	TTLMS          int64     `json:"ttl_ms"`
}

type LanguageRequest struct {
	InputLang string `json:"input_lang"`
}

type LanguageResponse struct {
	Code      string `json:"code"`
	InputLang string `json:"input_lang"`
}

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang"`
}

type TranslateResponse struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

type TTSRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}
