package server

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"paywall-engine/internal/audience"
	"paywall-engine/internal/confirm"
	"paywall-engine/internal/model"
	"paywall-engine/internal/presentation"
	"paywall-engine/internal/storage"
)

// cachedConfig is the serialized form of one configuration generation,
// written to the KV store for warm starts.
type cachedConfig struct {
	Generation string          `json:"generation"`
	Triggers   []model.Trigger `json:"triggers"`
	Paywalls   []model.Paywall `json:"paywalls"`
}

const keyLatestConfig = storage.KeyConfigPrefix + "latest"

// configLoader moves campaign configuration from postgres into the
// audience store, seeds assignment state from acknowledged
// confirmations and keeps the KV cache fresh.
type configLoader struct {
	source    *storage.Store
	kv        storage.KV
	audience  *audience.Store
	confirmer *confirm.Dispatcher
	ready     *presentation.Gate
}

// refresh loads from postgres and installs a new generation.
func (l *configLoader) refresh(ctx context.Context) error {
	triggers, paywalls, err := l.source.LoadCampaignConfig(ctx)
	if err != nil {
		return err
	}
	l.install(ctx, triggers, paywalls, true)
	return nil
}

// loadCached installs the last cached generation, if any. Used when the
// config source is unreachable at startup.
func (l *configLoader) loadCached(ctx context.Context) bool {
	data, err := l.kv.Get(ctx, keyLatestConfig)
	if err != nil {
		return false
	}
	var cached cachedConfig
	if err := json.Unmarshal(data, &cached); err != nil {
		log.Warn().Err(err).Msg("corrupt cached config, ignoring")
		return false
	}
	log.Info().Str("generation", cached.Generation).Msg("installing cached configuration")
	l.install(ctx, cached.Triggers, cached.Paywalls, false)
	return true
}

func (l *configLoader) install(ctx context.Context, triggers []model.Trigger, paywalls []model.Paywall, writeCache bool) {
	gen := l.audience.Replace(triggers, paywalls)

	ids, err := l.confirmer.Acknowledged(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load acknowledged assignments")
	} else {
		l.audience.SeedDispatched(ids)
	}

	if writeCache {
		data, err := json.Marshal(cachedConfig{
			Generation: gen,
			Triggers:   triggers,
			Paywalls:   paywalls,
		})
		if err == nil {
			if err := l.kv.Set(ctx, keyLatestConfig, data); err != nil {
				log.Warn().Err(err).Msg("cache config snapshot")
			}
			if err := l.kv.Set(ctx, storage.KeyConfigPrefix+gen, data); err != nil {
				log.Warn().Err(err).Msg("cache config generation")
			}
		}
	}

	l.ready.Open()
}
