package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/lingocast/internal/config"
	"github.com/ent0n29/lingocast/internal/provider"
)

type providerSetup struct {
	set    provider.Set
	detail string
}

// resolveProviders picks translation and speech backends from PROVIDER_MODE
// and the configured credentials. In auto mode each half falls back to the
// mock independently; live mode leaves a half unset instead.
func resolveProviders(cfg config.Config) (providerSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ProviderMode))
	if mode == "" {
		mode = "auto"
	}

	mock := provider.NewMockProvider()
	if mode == "mock" {
		return providerSetup{
			set:    provider.Set{Name: "mock", Translator: mock, Synthesizer: mock, Voices: mock},
			detail: "mock (forced)",
		}, nil
	}
	if mode != "auto" && mode != "live" {
		return providerSetup{}, fmt.Errorf("invalid PROVIDER_MODE: %q (expected auto|mock|live)", cfg.ProviderMode)
	}

	hasOpenAI := strings.TrimSpace(cfg.OpenAIAPIKey) != ""
	hasEleven := strings.TrimSpace(cfg.ElevenLabsAPIKey) != ""
	if mode == "live" && !hasOpenAI && !hasEleven {
		return providerSetup{}, fmt.Errorf("PROVIDER_MODE=live but neither OPENAI_API_KEY nor ELEVENLABS_API_KEY is set")
	}

	var (
		set   provider.Set
		names []string
	)
	switch {
	case hasOpenAI:
		set.Translator = provider.NewOpenAITranslator(provider.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAITranslateModel,
		})
		names = append(names, "openai")
	case mode == "auto":
		set.Translator = mock
		names = append(names, "mock")
	}

	switch {
	case hasEleven:
		eleven := provider.NewElevenLabs(provider.ElevenLabsConfig{
			APIKey:         cfg.ElevenLabsAPIKey,
			BaseURL:        cfg.ElevenLabsBaseURL,
			DefaultVoiceID: cfg.ElevenLabsTTSVoice,
			ModelID:        cfg.ElevenLabsTTSModel,
			OutputFormat:   cfg.ElevenLabsTTSOutputFormat,
		})
		set.Synthesizer = eleven
		set.Voices = eleven
		names = append(names, "elevenlabs")
	case mode == "auto":
		set.Synthesizer = mock
		set.Voices = mock
		names = append(names, "mock")
	}

	set.Name = strings.Join(dedupe(names), "+")
	return providerSetup{set: set, detail: fmt.Sprintf("%s (%s)", set.Name, mode)}, nil
}

func dedupe(in []string) []string {
	out := in[:0]
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
