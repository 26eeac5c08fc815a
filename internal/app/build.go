package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/lingocast/internal/broadcast"
	"github.com/ent0n29/lingocast/internal/config"
	"github.com/ent0n29/lingocast/internal/httpapi"
	"github.com/ent0n29/lingocast/internal/ingest"
	"github.com/ent0n29/lingocast/internal/observability"
	"github.com/ent0n29/lingocast/internal/provider"
	"github.com/ent0n29/lingocast/internal/session"
	"github.com/ent0n29/lingocast/internal/store"
)

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Store       store.Store
	StoreDriver string
	Sessions    *session.Controller
	Metrics     *observability.Metrics
	Providers   provider.Set
	// ProviderDetail is a human-readable summary for the startup log.
	ProviderDetail string

	// Cleanup releases the store connection; call it after the HTTP server has stopped.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = log.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, driver, err := store.NewStore(ctx, store.Options{
		Driver:         cfg.StoreDriver,
		RedisURL:       cfg.RedisURL,
		RedisKeyPrefix: cfg.RedisKeyPrefix,
		RedisPoolSize:  cfg.RedisPoolSize,
		DatabaseURL:    cfg.DatabaseURL,
		TTL:            cfg.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}

	providers, err := resolveProviders(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sessions := session.NewController(st,
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	)
	sessions.SetExpireHook(func(code, reason string) {
		logger.Info("session expired", "code", code, "reason", reason)
	})

	gateway := ingest.NewGateway(st, metrics, logger)
	streamer := broadcast.NewStreamer(st, cfg.StreamPollInterval, metrics, logger)

	api := httpapi.New(cfg, httpapi.Deps{
		Store:       st,
		StoreDriver: driver,
		Sessions:    sessions,
		Ingest:      gateway,
		Streamer:    streamer,
		Providers:   providers.set,
		Metrics:     metrics,
		Logger:      logger,
	})

	return &BuildResult{
		Config:         cfg,
		API:            api,
		Store:          st,
		StoreDriver:    driver,
		Sessions:       sessions,
		Metrics:        metrics,
		Providers:      providers.set,
		ProviderDetail: providers.detail,
		Cleanup:        st.Close,
	}, nil
}
