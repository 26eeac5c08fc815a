package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/lingocast/internal/code"
	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	info, err := s.deps.Sessions.Start(r.Context(), session.StartRequest{
		Code:      req.Code,
		InputLang: req.InputLang,
		Replace:   req.Replace,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(info))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(info))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionCode := chi.URLParam(r, "code")
	if err := s.deps.Sessions.Stop(r.Context(), sessionCode); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	sessionCode := chi.URLParam(r, "code")
	lang, err := s.deps.Sessions.Language(r.Context(), sessionCode)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.LanguageResponse{Code: code.Normalize(sessionCode), InputLang: lang})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req protocol.LanguageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	sessionCode := chi.URLParam(r, "code")
	if err := s.deps.Sessions.ChangeLanguage(r.Context(), sessionCode, req.InputLang); err != nil {
		s.fail(w, err)
		return
	}
	lang, err := s.deps.Sessions.Language(r.Context(), sessionCode)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.LanguageResponse{Code: code.Normalize(sessionCode), InputLang: lang})
}

func sessionResponse(info session.Info) protocol.SessionResponse {
	return protocol.SessionResponse{
		Code:           info.Code,
		InputLang:      info.InputLang,
		CreatedAt:      info.CreatedAt,
		LastActivityAt: info.LastActivityAt,
		ExpiresAt:      info.ExpiresAt,
		TTLMS:          info.TTLMS,
	}
}
