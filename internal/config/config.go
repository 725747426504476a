// Package config handles loading gateway configuration. Values are
// decoded as given; no validation is performed.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server    ServerConfig               `koanf:"server"`
	LLM       map[string]LLMConfig       `koanf:"llm"`
	Processor map[string]ProcessorConfig `koanf:"processor"`
	Route     []RouteConfig              `koanf:"route"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string   `koanf:"host"`
	Port               int      `koanf:"port"`
	LogLevel           string   `koanf:"log_level"`
	RequestTimeoutSecs int      `koanf:"request_timeout_secs"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// RequestTimeout returns the configured request timeout as a time.Duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// LLMConfig holds the settings for a single LLM backend.
type LLMConfig struct {
	Provider          string         `koanf:"provider"` // "openai" | "anthropic" | "google"
	Type              string         `koanf:"type"`      // "chat" | "completion" | "embedding"
	BaseURL           string         `koanf:"base_url"`
	TokenEnv          string         `koanf:"token_env"`
	SupportsStreaming bool           `koanf:"supports_streaming"`
	AdditionalConfig  map[string]any `koanf:"additional_config"`
}

// ProcessorConfig is an opaque processor specification. The core treats
// Type/ConfigValue/AdditionalConfig as opaque — concrete processor kinds
// are registered by the caller, not shipped here.
type ProcessorConfig struct {
	Type             string         `koanf:"type"`
	ConfigValue      string         `koanf:"config_value"`
	AdditionalConfig map[string]any `koanf:"additional_config"`
}

// RouteConfig maps a path prefix to a target LLM backend and processor chain.
type RouteConfig struct {
	PathPrefix        string   `koanf:"path_prefix"`
	TargetLLM         string   `koanf:"target_llm"`
	Processors        []string `koanf:"processors"`
	AllowStreaming    bool     `koanf:"allow_streaming"`
	AllowNonStreaming bool     `koanf:"allow_non_streaming"`
}

// FindRoute returns the first route whose path_prefix is a prefix of path,
// in declaration order. Returns nil, false if nothing matches.
func (c *Config) FindRoute(path string) (*RouteConfig, bool) {
	for i := range c.Route {
		if strings.HasPrefix(path, c.Route[i].PathPrefix) {
			return &c.Route[i], true
		}
	}
	return nil, false
}

// Load reads configuration from a TOML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	// Load the TOML config file. file.Provider reads the file,
	// tomlparser.Parser() decodes the TOML format into koanf's internal map.
	if err := k.Load(file.Provider(path), tomlparser.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "LLMPROXY_" can override a config value, e.g.
	//   LLMPROXY_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("LLMPROXY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMPROXY_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
