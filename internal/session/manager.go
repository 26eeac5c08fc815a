package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/lingocast/internal/code"
	"github.com/ent0n29/lingocast/internal/observability"
	"github.com/ent0n29/lingocast/internal/store"
)

var (
	ErrCodeInUse   = errors.New("session code already in use")
	ErrInvalidCode = errors.New("invalid session code")
)

// Reasons passed to the expire hook.
const (
	ExpireIdle = "idle"
	ExpireTTL  = "ttl"
)

// Controller mediates session creation and teardown. It holds no session
// state of its own; the store is authoritative.
type Controller struct {
	store       store.Store
	gen         *code.Generator
	idleTimeout time.Duration
	metrics     *observability.Metrics
	logger      *log.Logger
	now         func() time.Time

	mu       sync.RWMutex
	onExpire func(code, reason string)
}

type Option func(*Controller)

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

func WithGenerator(g *code.Generator) Option {
	return func(c *Controller) { c.gen = g }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(s store.Store, opts ...Option) *Controller {
	c := &Controller{
		store:  s,
		gen:    code.NewGenerator(nil),
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithPrefix("session")
	return c
}

func (c *Controller) SetExpireHook(hook func(code, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = hook
}

func (c *Controller) Start(ctx context.Context, req StartRequest) (Info, error) {
	var (
		sessionCode string
		replaced    bool
		err         error
	)
	if strings.TrimSpace(req.Code) != "" {
		sessionCode, replaced, err = c.claimExplicit(ctx, req.Code, req.Replace)
	} else {
		sessionCode, replaced, err = c.claimGenerated(ctx)
	}
	if err != nil {
		return Info{}, err
	}

	if err := c.store.CreateSession(ctx, sessionCode, strings.TrimSpace(req.InputLang)); err != nil {
		return Info{}, fmt.Errorf("create session %s: %w", sessionCode, err)
	}
	meta, err := c.store.Session(ctx, sessionCode)
	if err != nil {
		return Info{}, fmt.Errorf("load session %s: %w", sessionCode, err)
	}

	if !replaced {
		c.metrics.IncActiveSessions()
	}
	c.metrics.ObserveSessionEvent("start")
	c.logger.Info("session started", "code", sessionCode, "input_lang", meta.InputLang)
	return infoFromMeta(meta, c.now()), nil
}

// claimExplicit reports replaced when a live session already holds the code.
func (c *Controller) claimExplicit(ctx context.Context, raw string, replace bool) (string, bool, error) {
	candidate, err := code.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidCode, raw)
	}
	live, err := c.exists(ctx, candidate)
	if err != nil {
		return "", false, err
	}
	if live {
		if !replace {
			return "", false, fmt.Errorf("%w: %s", ErrCodeInUse, candidate)
		}
		c.metrics.ObserveSessionEvent("replace")
		c.logger.Info("replacing live session", "code", candidate)
	}
	return candidate, live, nil
}

// claimGenerated tries up to code.MaxAttempts fresh codes. When every
// candidate collides the last one is reused and the stale session is reset.
func (c *Controller) claimGenerated(ctx context.Context) (string, bool, error) {
	var candidate string
	for attempt := 1; attempt <= code.MaxAttempts; attempt++ {
		next, err := c.gen.Generate()
		if err != nil {
			return "", false, fmt.Errorf("generate code: %w", err)
		}
		candidate = next
		live, err := c.exists(ctx, candidate)
		if err != nil {
			return "", false, err
		}
		if !live {
			return candidate, false, nil
		}
	}
	c.metrics.ObserveSessionEvent("code_exhausted")
	c.logger.Warn("code space exhausted, superseding session", "code", candidate, "attempts", code.MaxAttempts)
	return candidate, true, nil
}

func (c *Controller) exists(ctx context.Context, sessionCode string) (bool, error) {
	_, err := c.store.Session(ctx, sessionCode)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check session %s: %w", sessionCode, err)
	}
}

// Stop ends the session. Connected listeners observe the end on their next poll.
func (c *Controller) Stop(ctx context.Context, raw string) error {
	sessionCode, err := c.parse(raw)
	if err != nil {
		return err
	}
	if err := c.store.EndSession(ctx, sessionCode); err != nil {
		return fmt.Errorf("end session %s: %w", sessionCode, err)
	}
	c.metrics.DecActiveSessions()
	c.metrics.ObserveSessionEvent("stop")
	c.logger.Info("session stopped", "code", sessionCode)
	return nil
}

func (c *Controller) Get(ctx context.Context, raw string) (Info, error) {
	sessionCode, err := c.parse(raw)
	if err != nil {
		return Info{}, err
	}
	meta, err := c.store.Session(ctx, sessionCode)
	if err != nil {
		return Info{}, fmt.Errorf("get session %s: %w", sessionCode, err)
	}
	return infoFromMeta(meta, c.now()), nil
}

func (c *Controller) ChangeLanguage(ctx context.Context, raw, lang string) error {
	sessionCode, err := c.parse(raw)
	if err != nil {
		return err
	}
	if err := c.store.SetInputLang(ctx, sessionCode, strings.TrimSpace(lang)); err != nil {
		return fmt.Errorf("set language %s: %w", sessionCode, err)
	}
	c.metrics.ObserveSessionEvent("language")
	return nil
}

func (c *Controller) Language(ctx context.Context, raw string) (string, error) {
	sessionCode, err := c.parse(raw)
	if err != nil {
		return "", err
	}
	lang, err := c.store.InputLang(ctx, sessionCode)
	if err != nil {
		return "", fmt.Errorf("get language %s: %w", sessionCode, err)
	}
	return lang, nil
}

func (c *Controller) parse(raw string) (string, error) {
	sessionCode, err := code.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, raw)
	}
	return sessionCode, nil
}

func (c *Controller) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx)
			}
		}
	}()
}

// ActiveCount returns the number of live sessions in the store.
func (c *Controller) ActiveCount(ctx context.Context) (int, error) {
	sessions, err := c.store.Sessions(ctx)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func (c *Controller) sweep(ctx context.Context) {
	c.mu.RLock()
	hook := c.onExpire
	c.mu.RUnlock()

	if p, ok := c.store.(store.Purger); ok {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			c.metrics.ObserveStoreError("purge")
			c.logger.Warn("purge expired failed", "err", err)
		} else if n > 0 {
			c.metrics.ObserveSessionEvent("expire")
			c.logger.Info("purged expired sessions", "count", n)
			if hook != nil {
				hook("", ExpireTTL)
			}
		}
	}

	sessions, err := c.store.Sessions(ctx)
	if err != nil {
		c.metrics.ObserveStoreError("sessions")
		c.logger.Warn("list sessions failed", "err", err)
		return
	}

	live := len(sessions)
	if c.idleTimeout > 0 {
		now := c.now()
		for _, meta := range sessions {
			if now.Sub(meta.LastActivityAt) < c.idleTimeout {
				continue
			}
			err := c.store.EndSession(ctx, meta.Code)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				c.metrics.ObserveStoreError("end_session")
				c.logger.Warn("idle teardown failed", "code", meta.Code, "err", err)
				continue
			}
			live--
			c.metrics.ObserveSessionEvent("idle_timeout")
			c.logger.Info("session idle, ended", "code", meta.Code, "idle", now.Sub(meta.LastActivityAt).Round(time.Second))
			if hook != nil {
				hook(meta.Code, ExpireIdle)
			}
		}
	}
	c.metrics.SetActiveSessions(live)
}
