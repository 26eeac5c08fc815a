package provider

import (
	"context"
	"strings"
	"time"

	"github.com/ent0n29/lingocast/internal/audio"
)

// MockProvider is a local fallback used when no upstream credentials are
// configured. Translations are tagged, speech is a short silent WAV.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrMissingText
	}
	target := strings.ToUpper(strings.TrimSpace(targetLang))
	if target == "" {
		target = "AUTO"
	}
	return "[" + target + "] " + text, nil
}

func (p *MockProvider) Synthesize(_ context.Context, text, _ string) (Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, ErrMissingText
	}
	// 40ms of silence per word.
	words := len(strings.Fields(text))
	pcm := make([]byte, audio.PCMBytes(time.Duration(words)*40*time.Millisecond, audio.DefaultSampleRate))
	wav, err := audio.EncodeWAVPCM16LE(pcm, audio.DefaultSampleRate)
	if err != nil {
		return Speech{}, err
	}
	return Speech{Audio: wav, ContentType: audio.ContentTypeWAV, Format: "pcm_16000"}, nil
}

func (p *MockProvider) Voices(context.Context) (VoiceList, error) {
	return VoiceList{
		DefaultVoiceID: "mock",
		Voices: []Voice{
			{VoiceID: "mock", Name: "Mock (silent)", Category: "mock"},
		},
	}, nil
}
