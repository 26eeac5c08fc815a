package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/lingocast/internal/observability"
	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/provider"
)

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Providers.Translator == nil {
		s.fail(w, errProviderNotConfigured)
		return
	}
	var req protocol.TranslateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.TargetLang) == "" {
		respondError(w, http.StatusBadRequest, codeMissingFields, "text and target_lang are required")
		return
	}

	started := time.Now()
	text, err := s.deps.Providers.Translator.Translate(r.Context(), req.Text, req.SourceLang, req.TargetLang)
	if err != nil {
		s.providerFailed(w, err)
		return
	}
	s.metrics.ObserveLatency(observability.StageTranslate, time.Since(started))
	respondJSON(w, http.StatusOK, protocol.TranslateResponse{Text: text, TargetLang: req.TargetLang})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Providers.Synthesizer == nil {
		s.fail(w, errProviderNotConfigured)
		return
	}
	var req protocol.TTSRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, codeMissingFields, "text is required")
		return
	}

	started := time.Now()
	speech, err := s.deps.Providers.Synthesizer.Synthesize(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		s.providerFailed(w, err)
		return
	}
	s.metrics.ObserveLatency(observability.StageSynthesize, time.Since(started))

	h := w.Header()
	h.Set("Content-Type", speech.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(speech.Audio)))
	h.Set("Cache-Control", "no-store")
	if speech.Format != "" {
		h.Set("X-Audio-Format", speech.Format)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Audio)
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Providers.Voices == nil {
		respondJSON(w, http.StatusOK, provider.VoiceList{Voices: []provider.Voice{}})
		return
	}
	list, err := s.deps.Providers.Voices.Voices(r.Context())
	if err != nil {
		s.providerFailed(w, err)
		return
	}
	if list.Voices == nil {
		list.Voices = []provider.Voice{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) providerFailed(w http.ResponseWriter, err error) {
	var upErr *provider.UpstreamError
	if errors.As(err, &upErr) {
		s.metrics.ObserveProviderError(upErr.Provider, statusLabel(upErr.Status))
	}
	s.fail(w, err)
}
