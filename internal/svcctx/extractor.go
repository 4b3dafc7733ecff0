package svcctx

import (
	"fmt"
	"time"

	"github.com/jackzampolin/llmshape/internal/extract"
	"github.com/jackzampolin/llmshape/internal/llmcall"
)

// ExtractorOptions overrides configured defaults for one Extractor.
// Zero values keep the configured default.
type ExtractorOptions struct {
	Backend     string
	Mode        string
	Model       string
	Temperature *float64
	Timeout     time.Duration

	// Record labels the history rows written for this extractor.
	Record llmcall.RecordOptions
}

// NewExtractor builds an Extractor from the current config: the backend is
// resolved from the registry, mode/temperature/timeout fall back to
// config defaults, and the metrics collector and history recorder are
// attached as observers when present.
func (s *Services) NewExtractor(opts ExtractorOptions) (*extract.Extractor, error) {
	if s == nil || s.Registry == nil {
		return nil, fmt.Errorf("backend registry not initialized")
	}

	backend, name, err := s.Registry.Resolve(opts.Backend)
	if err != nil {
		return nil, err
	}

	cfg := extract.Config{
		Backend:     backend,
		BackendName: name,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		Timeout:     opts.Timeout,
		Prompts:     s.Prompts,
		Logger:      s.Logger,
	}

	mode := opts.Mode
	if s.Config != nil {
		defaults := s.Config.Get().Defaults
		if mode == "" {
			mode = defaults.Mode
		}
		if cfg.Temperature == nil {
			t := defaults.Temperature
			cfg.Temperature = &t
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = defaults.Timeout()
		}
	}
	cfg.Mode, err = extract.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	var observers extract.Observers
	if s.Metrics != nil {
		observers = append(observers, s.Metrics)
	}
	if s.Recorder != nil {
		observers = append(observers, s.Recorder.Observer(opts.Record))
	}
	if len(observers) > 0 {
		cfg.Observer = observers
	}

	return extract.New(cfg)
}
