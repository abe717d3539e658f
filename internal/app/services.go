package app

import (
	"go.uber.org/zap"

	"github.com/nhle/codeinsight/internal/explain"
	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/modestate"
)

// Deps are the long-lived collaborators shared by the TUI and the headless
// commands.
type Deps struct {
	Creds explain.CredentialSource
	Cache *explain.Cache

	// Transport overrides the OpenAI transport built from the config.
	Transport explain.Transport

	Logger *zap.Logger
}

// NewCache builds the explanation cache described by cfg.
func NewCache(cfg model.AppConfig) *explain.Cache {
	return explain.NewCache(cfg.Cache.MaxEntries, cfg.Cache.TTL())
}

// NewExplainService builds the explanation service described by cfg.
func NewExplainService(cfg model.AppConfig, deps Deps) *explain.Service {
	transport := deps.Transport
	if transport == nil {
		transport = explain.NewOpenAITransport(cfg.AI.BaseURL)
	}

	delay := cfg.Cache.ReplayDelay()
	if delay == 0 {
		delay = -1
	}

	return explain.NewService(transport, deps.Creds, deps.Cache, explain.Config{
		Model:           cfg.AI.Model,
		MaxTokens:       int64(cfg.AI.MaxTokens),
		Temperature:     cfg.AI.Temperature,
		ReplayChunkSize: cfg.Cache.ReplayChunkSize,
		ReplayDelay:     delay,
	}, deps.Logger)
}

// machineConfig maps cfg onto the mode state machine settings.
func machineConfig(cfg model.AppConfig) modestate.Config {
	mc := modestate.DefaultConfig()
	mc.InitialMode = cfg.Mode()
	mc.LargeChunkThreshold = cfg.UI.LargeChunkThreshold
	return mc
}
