package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"paywall-engine/internal/api"
	"paywall-engine/internal/audience"
	"paywall-engine/internal/config"
	"paywall-engine/internal/confirm"
	"paywall-engine/internal/identity"
	"paywall-engine/internal/listener"
	"paywall-engine/internal/presentation"
	"paywall-engine/internal/renderer"
	"paywall-engine/internal/ruleeval"
	"paywall-engine/internal/session"
	"paywall-engine/internal/storage"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	var kv storage.KV = store
	if cfg.Redis.Enabled {
		rdb := storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.RedisTTL())
		if err := rdb.Ping(rootCtx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, falling back to postgres kv")
		} else {
			kv = rdb
			defer rdb.Close()
		}
	}

	// Core
	audStore := audience.NewStore()
	audService := audience.NewService(audStore, ruleeval.New())
	ids := identity.NewManager()
	states := presentation.NewStateStore()
	confirmer := confirm.NewDispatcher(confirm.LogTransport{}, kv)
	ready := presentation.NewGate()

	pipeline := presentation.NewPipeline(presentation.Dependencies{
		Audience:      audService,
		States:        states,
		Renderer:      renderer.NewHeadless(),
		Confirmer:     confirmer,
		Sessions:      session.LogTracker{},
		Identity:      ids,
		ConfigReady:   ready,
		ReadinessUnit: cfg.ReadinessUnit(),
	})

	// Configuration: postgres first, cached snapshot as fallback.
	loader := &configLoader{
		source:    store,
		kv:        kv,
		audience:  audStore,
		confirmer: confirmer,
		ready:     ready,
	}
	if err := loader.refresh(rootCtx); err != nil {
		log.Warn().Err(err).Msg("initial config load failed, trying cache")
		if !loader.loadCached(rootCtx) {
			log.Fatal().Err(err).Msg("no configuration available")
		}
	}

	// HTTP
	h := api.NewHandler(pipeline, ids)
	r := api.Router(h)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Listener (LISTEN/NOTIFY)
	go listener.ListenAndRefresh(rootCtx, store, cfg.Listener.Channel, cfg.Backoff(), loader.refresh)

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
