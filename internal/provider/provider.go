package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/lingocast/internal/reliability"
)

var ErrMissingText = errors.New("text is required")

// Translator turns operator text into a listener's target language.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Speech is one synthesized utterance.
type Speech struct {
	Audio       []byte
	ContentType string
	Format      string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Speech, error)
}

type Voice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

type VoiceList struct {
	DefaultVoiceID string  `json:"default_voice_id"`
	Voices         []Voice `json:"voices"`
}

type VoiceCatalog interface {
	Voices(ctx context.Context) (VoiceList, error)
}

// Set bundles the collaborators exposed over HTTP. Nil members are reported
// as not configured.
type Set struct {
	Name        string
	Translator  Translator
	Synthesizer Synthesizer
	Voices      VoiceCatalog
}

// UpstreamError carries a provider failure with the upstream status so it can
// be relayed to the caller.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s upstream status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s upstream: %s", e.Provider, e.Message)
}

// Retryable reports whether the upstream status suggests a transient failure.
func (e *UpstreamError) Retryable() bool {
	return e.Status == 0 || reliability.IsRetryableHTTPStatus(e.Status)
}

func upstream(provider string, status int, msg string) error {
	msg = strings.TrimSpace(msg)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &UpstreamError{Provider: provider, Status: status, Message: msg}
}
