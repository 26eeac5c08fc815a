package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/lingocast/internal/audio"
)

const (
	providerElevenLabs    = "elevenlabs"
	defaultElevenLabsURL  = "https://api.elevenlabs.io"
	defaultElevenModel    = "eleven_multilingual_v2"
	defaultElevenFormat   = "mp3_44100_128"
	maxElevenAudioBytes   = 16 << 20
	maxElevenCatalogBytes = 2 << 20
)

type ElevenLabsConfig struct {
	APIKey         string
	BaseURL        string
	DefaultVoiceID string
	ModelID        string
	OutputFormat   string
	HTTPClient     *http.Client
}

// ElevenLabs implements Synthesizer and VoiceCatalog over the REST API.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultElevenLabsURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = defaultElevenModel
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = defaultElevenFormat
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ElevenLabs{cfg: cfg, client: client}
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, ErrMissingText
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		voiceID = e.cfg.DefaultVoiceID
	}
	if voiceID == "" {
		return Speech{}, fmt.Errorf("voice_id is required")
	}

	u, err := url.Parse(e.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID))
	if err != nil {
		return Speech{}, err
	}
	q := u.Query()
	q.Set("output_format", e.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.cfg.ModelID,
	})
	if err != nil {
		return Speech{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return Speech{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	body, err := e.do(req, maxElevenAudioBytes)
	if err != nil {
		return Speech{}, err
	}

	speech := Speech{
		Audio:       body,
		Format:      e.cfg.OutputFormat,
		ContentType: audio.ContentTypeForFormat(e.cfg.OutputFormat),
	}
	if rate, ok := audio.PCMSampleRate(e.cfg.OutputFormat); ok {
		wav, err := audio.EncodeWAVPCM16LE(body, rate)
		if err != nil {
			return Speech{}, err
		}
		speech.Audio = wav
		speech.ContentType = audio.ContentTypeWAV
	}
	return speech, nil
}

func (e *ElevenLabs) Voices(ctx context.Context) (VoiceList, error) {
	out := VoiceList{DefaultVoiceID: e.cfg.DefaultVoiceID, Voices: []Voice{}}
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return out, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/v1/voices", nil)
	if err != nil {
		return VoiceList{}, err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	body, err := e.do(req, maxElevenCatalogBytes)
	if err != nil {
		return VoiceList{}, err
	}

	var parsed struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return VoiceList{}, upstream(providerElevenLabs, http.StatusOK, "invalid json: "+err.Error())
	}
	for _, v := range parsed.Voices {
		v.VoiceID = strings.TrimSpace(v.VoiceID)
		v.Name = strings.TrimSpace(v.Name)
		v.Category = strings.TrimSpace(v.Category)
		if v.VoiceID == "" || v.Name == "" {
			continue
		}
		out.Voices = append(out.Voices, v)
	}
	sort.Slice(out.Voices, func(i, j int) bool {
		return strings.ToLower(out.Voices[i].Name) < strings.ToLower(out.Voices[j].Name)
	})
	return out, nil
}

func (e *ElevenLabs) do(req *http.Request, limit int64) ([]byte, error) {
	res, err := e.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, upstream(providerElevenLabs, 0, err.Error())
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return nil, upstream(providerElevenLabs, res.StatusCode, "read body: "+err.Error())
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, upstream(providerElevenLabs, res.StatusCode, elevenErrorMessage(body))
	}
	return body, nil
}

// elevenErrorMessage pulls detail.message out of an error body when present.
func elevenErrorMessage(body []byte) string {
	var parsed struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail.Message != "" {
		return parsed.Detail.Message
	}
	return string(body)
}
