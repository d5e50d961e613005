// Package config loads researchmesh configuration from YAML files and
// environment variables. It supports XDG config paths, project-level
// overrides, and RESEARCHMESH_ prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/researchmesh/core"
)

// Config holds all configuration for researchmesh.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Search   SearchConfig   `mapstructure:"search"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// ProviderConfig selects and configures the completion engine.
type ProviderConfig struct {
	// Name is the engine adapter: anthropic, openai or openai-compat.
	Name string `mapstructure:"name"`
	// Model is the model identifier passed to the provider.
	Model string `mapstructure:"model"`
	// APIKey authenticates against the provider. ${VAR} references are
	// expanded.
	APIKey string `mapstructure:"api_key"`
	// BaseURL points openai-compat at an alternative endpoint.
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig configures the SearxNG search provider.
type SearchConfig struct {
	SearxNGURL string        `mapstructure:"searxng_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// DefaultsConfig holds the per-session research bounds applied when a
// session does not override them.
type DefaultsConfig struct {
	MaxAgents           int     `mapstructure:"max_agents"`
	MaxSearchesPerAgent int     `mapstructure:"max_searches_per_agent"`
	Depth               string  `mapstructure:"depth"`
	MaxIterations       int     `mapstructure:"max_iterations"`
	MaxDurationMinutes  int     `mapstructure:"max_duration_minutes"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	SaturationThreshold float64 `mapstructure:"saturation_threshold"`
	SubtopicCoverage    float64 `mapstructure:"subtopic_coverage"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the session store. An empty SQLitePath keeps
// sessions in memory.
type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ResearchConfig converts the configured defaults to a core.ResearchConfig.
func (c *Config) ResearchConfig() core.ResearchConfig {
	return core.ResearchConfig{
		MaxAgents:           c.Defaults.MaxAgents,
		MaxSearchesPerAgent: c.Defaults.MaxSearchesPerAgent,
		DepthLevel:          core.DepthLevel(c.Defaults.Depth),
	}
}

// ExitCriteria converts the configured defaults to core.ExitCriteria.
func (c *Config) ExitCriteria() core.ExitCriteria {
	return core.ExitCriteria{
		MaxIterations:            c.Defaults.MaxIterations,
		MaxDurationMinutes:       c.Defaults.MaxDurationMinutes,
		MinConfidenceScore:       c.Defaults.MinConfidence,
		SaturationThreshold:      c.Defaults.SaturationThreshold,
		RequiredSubtopicCoverage: c.Defaults.SubtopicCoverage,
	}
}

// Load loads configuration from XDG paths, a project-level file, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (RESEARCHMESH_*, ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (researchmesh.yaml in the current directory or a parent)
// 3. User config ($XDG_CONFIG_HOME/researchmesh/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("RESEARCHMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("provider.api_key", "RESEARCHMESH_PROVIDER_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("search.searxng_url", "RESEARCHMESH_SEARCH_SEARXNG_URL", "SEARXNG_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name: "anthropic",
		},
		Search: SearchConfig{
			SearxNGURL: "http://localhost:8888",
			Timeout:    15 * time.Second,
		},
		Defaults: DefaultsConfig{
			MaxAgents:           3,
			MaxSearchesPerAgent: 5,
			Depth:               string(core.DepthMedium),
			MaxIterations:       10,
			MaxDurationMinutes:  30,
			MinConfidence:       0.7,
			SaturationThreshold: 0.1,
			SubtopicCoverage:    0.8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("provider.name", def.Provider.Name)
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")

	v.SetDefault("search.searxng_url", def.Search.SearxNGURL)
	v.SetDefault("search.timeout", def.Search.Timeout.String())
	v.SetDefault("search.user_agent", "")

	v.SetDefault("defaults.max_agents", def.Defaults.MaxAgents)
	v.SetDefault("defaults.max_searches_per_agent", def.Defaults.MaxSearchesPerAgent)
	v.SetDefault("defaults.depth", def.Defaults.Depth)
	v.SetDefault("defaults.max_iterations", def.Defaults.MaxIterations)
	v.SetDefault("defaults.max_duration_minutes", def.Defaults.MaxDurationMinutes)
	v.SetDefault("defaults.min_confidence", def.Defaults.MinConfidence)
	v.SetDefault("defaults.saturation_threshold", def.Defaults.SaturationThreshold)
	v.SetDefault("defaults.subtopic_coverage", def.Defaults.SubtopicCoverage)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetDefault("storage.sqlite_path", "")
}

func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "researchmesh")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "researchmesh")
	}
	return filepath.Join(home, ".config", "researchmesh")
}

// findProjectConfig searches for researchmesh.yaml in the current directory
// and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, "researchmesh.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
