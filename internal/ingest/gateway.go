package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/lingocast/internal/code"
	"github.com/ent0n29/lingocast/internal/observability"
	"github.com/ent0n29/lingocast/internal/store"
)

var (
	ErrMissingFields = errors.New("missing code or payload")
	ErrInvalidCode   = errors.New("invalid session code")
)

const defaultAudioContentType = "application/octet-stream"

// Receipt identifies the entry written by one ingest call.
type Receipt struct {
	Seq int   `json:"seq"`
	T   int64 `json:"t"`
}

// Gateway appends operator submissions to a session's logs. It never creates
// sessions and knows nothing about listeners.
type Gateway struct {
	store   store.Store
	metrics *observability.Metrics
	logger  *log.Logger
	now     func() time.Time
}

func NewGateway(s store.Store, metrics *observability.Metrics, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		store:   s,
		metrics: metrics,
		logger:  logger.WithPrefix("ingest"),
		now:     time.Now,
	}
}

func (g *Gateway) IngestText(ctx context.Context, rawCode, text string) (Receipt, error) {
	c, err := g.validate(rawCode, strings.TrimSpace(text) != "")
	if err != nil {
		g.metrics.ObserveIngest(string(store.KindEvents), "invalid")
		return Receipt{}, err
	}
	receipt, err := g.append(ctx, c, store.KindEvents, store.Entry{Text: text})
	if err == nil {
		g.logger.Debug("line appended", "code", c, "seq", receipt.Seq, "text", logPreview(text))
	}
	return receipt, err
}

func (g *Gateway) IngestAudio(ctx context.Context, rawCode string, data []byte, contentType string) (Receipt, error) {
	c, err := g.validate(rawCode, len(data) > 0)
	if err != nil {
		g.metrics.ObserveIngest(string(store.KindAudio), "invalid")
		return Receipt{}, err
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = defaultAudioContentType
	}
	return g.append(ctx, c, store.KindAudio, store.Entry{Data: data, ContentType: contentType})
}

func (g *Gateway) validate(rawCode string, hasPayload bool) (string, error) {
	c := code.Normalize(rawCode)
	if c == "" || !hasPayload {
		return "", ErrMissingFields
	}
	if !code.Valid(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, c)
	}
	return c, nil
}

func (g *Gateway) append(ctx context.Context, c string, kind store.Kind, entry store.Entry) (Receipt, error) {
	started := g.now()
	entry.Timestamp = started.UnixMilli()

	n, err := g.store.Append(ctx, c, kind, entry)
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.metrics.ObserveIngest(string(kind), "not_found")
		return Receipt{}, fmt.Errorf("ingest %s: %w", c, err)
	case err != nil:
		g.metrics.ObserveIngest(string(kind), "error")
		g.metrics.ObserveStoreError("append")
		g.logger.Error("append failed", "code", c, "kind", kind, "err", err)
		return Receipt{}, fmt.Errorf("ingest %s: %w", c, err)
	}

	g.metrics.ObserveIngest(string(kind), "ok")
	g.metrics.ObserveLatency(observability.StageIngestAppend, time.Since(started))
	return Receipt{Seq: n - 1, T: entry.Timestamp}, nil
}
