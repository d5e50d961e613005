package main

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/researchmesh"
	"github.com/hupe1980/researchmesh/config"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/model/anthropic"
	"github.com/hupe1980/researchmesh/model/openai"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/session"
)

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// newMesh builds a fully wired Mesh from configuration: completion engine,
// search provider, store and logger.
func newMesh(cfg *config.Config) (*researchmesh.Mesh, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	provider := search.NewSearxNG(cfg.Search.SearxNGURL, func(o *search.SearxNGOptions) {
		if cfg.Search.Timeout > 0 {
			o.Timeout = cfg.Search.Timeout
		}
		if cfg.Search.UserAgent != "" {
			o.UserAgent = cfg.Search.UserAgent
		}
	})

	var store session.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = session.OpenSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	return researchmesh.New(engine, provider, func(o *researchmesh.Options) {
		o.Store = store
		o.Logger = logger
	}), nil
}

func newEngine(cfg *config.Config) (model.Engine, error) {
	switch cfg.Provider.Name {
	case "anthropic", "":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.Provider.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Provider.Model)
			}
			o.APIKey = cfg.Provider.APIKey
		}), nil
	case "openai":
		return openai.New(func(o *openai.Options) {
			if cfg.Provider.Model != "" {
				o.Model = cfg.Provider.Model
			}
			o.APIKey = cfg.Provider.APIKey
		}), nil
	case "openai-compat":
		if cfg.Provider.BaseURL == "" {
			return nil, fmt.Errorf("provider openai-compat requires base_url")
		}
		return openai.New(func(o *openai.Options) {
			if cfg.Provider.Model != "" {
				o.Model = cfg.Provider.Model
			}
			o.APIKey = cfg.Provider.APIKey
			o.BaseURL = cfg.Provider.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}
