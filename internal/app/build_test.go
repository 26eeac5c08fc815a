package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/lingocast/internal/config"
	"github.com/ent0n29/lingocast/internal/provider"
	"github.com/ent0n29/lingocast/internal/session"
)

func TestResolveProviders(t *testing.T) {
	cases := []struct {
		name       string
		cfg        config.Config
		wantName   string
		translator bool
		speech     bool
	}{
		{"auto without keys", config.Config{ProviderMode: "auto"}, "mock", true, true},
		{"forced mock", config.Config{ProviderMode: "mock", OpenAIAPIKey: "sk"}, "mock", true, true},
		{"auto openai only", config.Config{ProviderMode: "auto", OpenAIAPIKey: "sk"}, "openai+mock", true, true},
		{"auto both", config.Config{ProviderMode: "auto", OpenAIAPIKey: "sk", ElevenLabsAPIKey: "xi"}, "openai+elevenlabs", true, true},
		{"live elevenlabs only", config.Config{ProviderMode: "live", ElevenLabsAPIKey: "xi"}, "elevenlabs", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveProviders(tc.cfg)
			if err != nil {
				t.Fatalf("resolveProviders() error = %v", err)
			}
			if got.set.Name != tc.wantName {
				t.Fatalf("Name = %q, want %q", got.set.Name, tc.wantName)
			}
			if (got.set.Translator != nil) != tc.translator || (got.set.Synthesizer != nil) != tc.speech {
				t.Fatalf("set = %+v", got.set)
			}
		})
	}
}

func TestResolveProvidersLiveRequiresKeys(t *testing.T) {
	if _, err := resolveProviders(config.Config{ProviderMode: "live"}); err == nil {
		t.Fatal("expected error for live mode without credentials")
	}
	if _, err := resolveProviders(config.Config{ProviderMode: "cloud"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestResolveProvidersMockIsUsable(t *testing.T) {
	got, err := resolveProviders(config.Config{})
	if err != nil {
		t.Fatalf("resolveProviders() error = %v", err)
	}
	if _, ok := got.set.Translator.(*provider.MockProvider); !ok {
		t.Fatalf("Translator = %T, want *provider.MockProvider", got.set.Translator)
	}
}

func TestBuildWithMemoryStore(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:   "test_app_build_" + time.Now().Format("150405"),
		SessionTTL:         time.Hour,
		StreamPollInterval: 50 * time.Millisecond,
		StoreDriver:        "memory",
		ProviderMode:       "mock",
	}
	res, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.StoreDriver != "memory" || res.API == nil || res.Sessions == nil {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.ProviderDetail, "mock") {
		t.Fatalf("ProviderDetail = %q", res.ProviderDetail)
	}
	info, err := res.Sessions.Start(context.Background(), session.StartRequest{Code: "BILD"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if info.Code != "BILD" {
		t.Fatalf("Code = %q", info.Code)
	}
}
