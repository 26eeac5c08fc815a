package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/lingocast/internal/broadcast"
	"github.com/ent0n29/lingocast/internal/code"
	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/store"
)

const wsWriteTimeout = 10 * time.Second

type streamParams struct {
	code string
	kind store.Kind
}

func parseStreamParams(r *http.Request) (streamParams, error) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("code"))
	if raw == "" {
		return streamParams{}, broadcast.ErrMissingCode
	}
	c, err := code.Parse(raw)
	if err != nil {
		return streamParams{}, err
	}
	kind, err := store.ParseKind(strings.TrimSpace(q.Get("kind")))
	if err != nil {
		return streamParams{}, err
	}
	return streamParams{code: c, kind: kind}, nil
}

func (s *Server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, codeInternal, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	listener := uuid.NewString()
	s.metrics.StreamOpened("sse")
	defer s.metrics.StreamClosed("sse")
	s.logger.Debug("listener attached", "listener", listener, "code", params.code, "kind", params.kind, "transport", "sse")

	emit := func(ev protocol.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := s.deps.Streamer.Run(r.Context(), params.code, params.kind, emit); err != nil {
		s.logger.Warn("stream stopped", "listener", listener, "code", params.code, "err", err)
	}
	s.logger.Debug("listener detached", "listener", listener, "code", params.code)
}

func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	listener := uuid.NewString()
	s.metrics.StreamOpened("ws")
	defer s.metrics.StreamClosed("ws")
	s.logger.Debug("listener attached", "listener", listener, "code", params.code, "kind", params.kind, "transport", "ws")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Listeners never send payloads; reading only surfaces the close.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		conn.SetReadLimit(4 << 10)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	emit := func(ev protocol.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(ev)
	}
	if err := s.deps.Streamer.Run(ctx, params.code, params.kind, emit); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("stream stopped", "listener", listener, "code", params.code, "err", err)
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	cancel()
	_ = conn.Close()
	<-readerDone
	s.logger.Debug("listener detached", "listener", listener, "code", params.code)
}
