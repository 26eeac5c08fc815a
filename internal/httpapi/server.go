package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/lingocast/internal/broadcast"
	"github.com/ent0n29/lingocast/internal/code"
	"github.com/ent0n29/lingocast/internal/config"
	"github.com/ent0n29/lingocast/internal/ingest"
	"github.com/ent0n29/lingocast/internal/observability"
	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/provider"
	"github.com/ent0n29/lingocast/internal/session"
	"github.com/ent0n29/lingocast/internal/store"
)

// Error codes returned in errorResponse.Code.
const (
	codeMissingFields      = "MISSING_FIELDS"
	codeInvalidCode        = "INVALID_CODE"
	codeInvalidKind        = "INVALID_KIND"
	codeInvalidRequest     = "INVALID_REQUEST"
	codeSessionNotFound    = "SESSION_NOT_FOUND"
	codeCodeInUse          = "CODE_IN_USE"
	codeStoreUnavailable   = "STORE_UNAVAILABLE"
	codeUpstreamFailure    = "UPSTREAM_PROVIDER_FAILURE"
	codeProviderNotEnabled = "PROVIDER_NOT_CONFIGURED"
	codeInternal           = "INTERNAL_ERROR"
)

const maxIngestBody = 8 << 20

var errProviderNotConfigured = errors.New("provider not configured")

// Deps are the collaborators the HTTP boundary dispatches to.
type Deps struct {
	Store       store.Store
	StoreDriver string
	Sessions    *session.Controller
	Ingest      *ingest.Gateway
	Streamer    *broadcast.Streamer
	Providers   provider.Set
	Metrics     *observability.Metrics
	Logger      *log.Logger
}

type Server struct {
	cfg      config.Config
	deps     Deps
	metrics  *observability.Metrics
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		logger:  logger.WithPrefix("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.cfg.AllowAnyOrigin {
		r.Use(allowAnyOrigin)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Route("/v1/sessions/{code}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleEndSession)
		r.Get("/lang", s.handleGetLanguage)
		r.Put("/lang", s.handleSetLanguage)
	})

	r.Post("/v1/ingest", s.handleIngest)
	r.Post("/v1/ingest/audio", s.handleIngestAudio)

	r.Get("/v1/stream", s.handleStreamSSE)
	r.Get("/v1/stream/ws", s.handleStreamWS)

	r.Post("/v1/translate", s.handleTranslate)
	r.Post("/v1/tts", s.handleSynthesize)
	r.Get("/v1/voices", s.handleListVoices)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"store":    s.deps.StoreDriver,
		"provider": s.deps.Providers.Name,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.deps.Store.(store.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, codeStoreUnavailable, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"store":  s.deps.StoreDriver,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

// classifyError maps domain errors onto an HTTP status and error code.
func classifyError(err error) (int, string) {
	var upErr *provider.UpstreamError
	switch {
	case errors.Is(err, ingest.ErrMissingFields),
		errors.Is(err, provider.ErrMissingText),
		errors.Is(err, broadcast.ErrMissingCode):
		return http.StatusBadRequest, codeMissingFields
	case errors.Is(err, ingest.ErrInvalidCode),
		errors.Is(err, session.ErrInvalidCode),
		errors.Is(err, code.ErrInvalid):
		return http.StatusBadRequest, codeInvalidCode
	case errors.Is(err, store.ErrInvalidKind):
		return http.StatusBadRequest, codeInvalidKind
	case errors.Is(err, protocol.ErrMalformed), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codeSessionNotFound
	case errors.Is(err, session.ErrCodeInUse):
		return http.StatusConflict, codeCodeInUse
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, codeStoreUnavailable
	case errors.As(err, &upErr):
		return http.StatusBadGateway, codeUpstreamFailure
	case errors.Is(err, errProviderNotConfigured):
		return http.StatusNotImplemented, codeProviderNotEnabled
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, errCode := classifyError(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.logger.Error("request failed", "code", errCode, "err", err)
	}
	respondError(w, status, errCode, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxIngestBody))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func statusLabel(status int) string {
	if status <= 0 {
		return "network"
	}
	return strconv.Itoa(status)
}
