package main

import (
	"context"
	"time"

	"github.com/jackzampolin/llmshape/internal/config"
	"github.com/jackzampolin/llmshape/internal/extract"
	"github.com/jackzampolin/llmshape/internal/home"
	"github.com/jackzampolin/llmshape/internal/llmcall"
	"github.com/jackzampolin/llmshape/internal/presets"
	"github.com/jackzampolin/llmshape/internal/prompts"
	"github.com/jackzampolin/llmshape/internal/prompts/instruction"
	"github.com/jackzampolin/llmshape/internal/providers"
	"github.com/jackzampolin/llmshape/internal/svcctx"
)

// localRuntime wires the services a one-shot CLI extraction needs.
type localRuntime struct {
	services *svcctx.Services
	store    *llmcall.Store
	sink     *llmcall.Sink
}

// loadHome resolves the home directory from --home.
func loadHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// loadConfig reads --config, falling back to {home}/config.yaml when it
// exists, then viper's search paths.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h != nil && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}

// newPromptResolver registers every embedded prompt and applies config overrides.
func newPromptResolver(cfg *config.Config) *prompts.Resolver {
	r := prompts.NewResolver(logger)
	instruction.RegisterPrompts(r)
	presets.RegisterPrompts(r)
	if cfg != nil {
		r.SetOverrides(cfg.Prompts)
	}
	return r
}

// setupRuntime loads config and opens call history when it is enabled.
func setupRuntime(ctx context.Context) (*localRuntime, error) {
	h, err := loadHome()
	if err != nil {
		return nil, err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.Reload(cfg.ToProviderRegistryConfig())

	rt := &localRuntime{
		services: &svcctx.Services{
			Registry: registry,
			Config:   mgr,
			Prompts:  newPromptResolver(cfg),
			Logger:   logger,
			Home:     h,
		},
	}

	if cfg.History.Enabled {
		store, err := llmcall.NewStore(h.HistoryPath(cfg.History.Path))
		if err != nil {
			return nil, err
		}
		rt.store = store
		rt.sink = llmcall.NewSink(llmcall.SinkConfig{Store: store, Logger: logger})
		rt.sink.Start(ctx)
		rt.services.LLMCallStore = store
		rt.services.Recorder = llmcall.NewRecorder(rt.sink)
	}

	return rt, nil
}

// Close flushes pending history writes and closes the store.
func (rt *localRuntime) Close() {
	if rt.sink != nil {
		rt.sink.Stop()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			logger.Warn("failed to close call history", "error", err)
		}
	}
}

// extractor builds an Extractor from config plus the global flag overrides.
func (rt *localRuntime) extractor(rec llmcall.RecordOptions) (*extract.Extractor, error) {
	return rt.services.NewExtractor(svcctx.ExtractorOptions{
		Backend: backendName,
		Mode:    modeName,
		Model:   modelName,
		Timeout: timeout,
		Record:  rec,
	})
}

// retryPolicy maps --retries onto an outer retry policy.
func retryPolicy() extract.RetryPolicy {
	return extract.RetryPolicy{
		Attempts: retries + 1,
		Delay:    500 * time.Millisecond,
		MaxDelay: 10 * time.Second,
	}
}

func recordOptions(p *prompts.ResolvedPrompt) llmcall.RecordOptions {
	if p == nil {
		return llmcall.RecordOptions{}
	}
	return llmcall.RecordOptions{PromptKey: p.Key, PromptHash: p.Hash}
}
