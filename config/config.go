// Package config handles loading and managing xoswarm configuration.
//
// Configuration lives in a TOML file following the XDG Base Directory
// specification. Values missing from the file fall back to defaults, and a
// small set of environment variables can override the file so deployments can
// inject credentials without writing them to disk.
//
// Example TOML configuration:
//
//	request_timeout_seconds = 30
//	local_timeout_seconds = 60
//
//	[llms.openai]
//	api_key = "sk-..."
//
//	[llms.ollama]
//	base_url = "http://localhost:11434"
//
//	[synthesis]
//	model = "llama3"
//
//	[memory]
//	enabled = true
//	path = "/var/lib/xoswarm/memory.db"
//
// Example programmatic usage:
//
//	cfg := config.NewConfig(30, map[string]config.LLMConfig{
//		config.ProviderOpenAI: {APIKey: "key"},
//	})
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	appName         = "xoswarm"
	configFileName  = "config.toml"
	DefaultDirPerm  = 0750 // rwxr-x---
	DefaultFilePerm = 0600 // rw------- (Contains potential secrets)
)

// Provider keys used in the [llms] table.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderPerplexity = "perplexity"
	ProviderGroq       = "groq"
	ProviderOllama     = "ollama"
)

const (
	defaultCloudTimeout   = 30
	defaultLocalTimeout   = 60
	defaultOllamaURL      = "http://localhost:11434"
	defaultSynthModel     = "llama3"
	defaultCloudSynth     = "gpt-4o-mini"
	defaultFreeWebURL     = "http://localhost:1337/v1"
	defaultFreeWebModel   = "gpt-4"
	defaultMemoryLimit    = 2
	defaultMemorySource   = "Mobile-Synthesized"
	defaultMemorySaveSecs = 10
	defaultServerHost     = "0.0.0.0"
	defaultServerPort     = 8000
)

// Config holds the application's configuration.
type Config struct {
	// RequestTimeoutSeconds bounds each hosted cloud API call.
	// If <= 0, a default of 30 seconds is used.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	// LocalTimeoutSeconds bounds each local inference call. Local models may
	// need to be loaded into memory on first use, so this is longer.
	// If <= 0, a default of 60 seconds is used.
	LocalTimeoutSeconds int `toml:"local_timeout_seconds"`

	// LLMs contains provider-specific configurations keyed by provider name.
	LLMs map[string]LLMConfig `toml:"llms"`

	Synthesis SynthesisConfig `toml:"synthesis"`
	FreeWeb   FreeWebConfig   `toml:"free_web"`
	Memory    MemoryConfig    `toml:"memory"`
	Server    ServerConfig    `toml:"server"`
}

// LLMConfig holds configuration specific to an LLM provider.
//
// Hosted providers need APIKey; Ollama needs BaseURL. Model is an optional
// override of the provider's built-in default everywhere.
type LLMConfig struct {
	// BaseURL is the base URL for the LLM API (used by Ollama).
	// Example: "http://localhost:11434"
	BaseURL string `toml:"base_url,omitempty"`

	// APIKey is the authentication key for cloud-based providers.
	APIKey string `toml:"api_key,omitempty"`

	// Model overrides the provider's default model when non-empty.
	Model string `toml:"model,omitempty"`
}

// SynthesisConfig configures the synthesizer and its fallback tiers.
type SynthesisConfig struct {
	// Endpoint is the Ollama base URL of the primary synthesizer. Empty means
	// the [llms.ollama] base URL.
	Endpoint       string `toml:"endpoint,omitempty"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// CloudModel is the OpenAI model used when the primary target fails and
	// an OpenAI key is configured.
	CloudModel          string `toml:"cloud_model"`
	CloudTimeoutSeconds int    `toml:"cloud_timeout_seconds"`

	// TotalTimeoutSeconds caps the whole cascade. Zero leaves it unbounded,
	// so the worst case is the sum of the per-tier timeouts.
	TotalTimeoutSeconds int `toml:"total_timeout_seconds"`
}

// FreeWebConfig configures the zero-credential backend used when a hosted
// provider has no key, and as the last synthesis tier.
type FreeWebConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MemoryConfig configures the question/answer memory store.
type MemoryConfig struct {
	Enabled            bool   `toml:"enabled"`
	Path               string `toml:"path"`
	Limit              int    `toml:"limit"`
	SourceLabel        string `toml:"source_label"`
	SaveTimeoutSeconds int    `toml:"save_timeout_seconds"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Default configuration values.
func defaultConfig() Config {
	return Config{
		RequestTimeoutSeconds: defaultCloudTimeout,
		LocalTimeoutSeconds:   defaultLocalTimeout,
		LLMs: map[string]LLMConfig{
			ProviderOllama:     {BaseURL: defaultOllamaURL},
			ProviderOpenAI:     {},
			ProviderAnthropic:  {},
			ProviderGemini:     {},
			ProviderPerplexity: {},
			ProviderGroq:       {},
		},
		Synthesis: SynthesisConfig{
			Model:               defaultSynthModel,
			TimeoutSeconds:      defaultLocalTimeout,
			CloudModel:          defaultCloudSynth,
			CloudTimeoutSeconds: defaultCloudTimeout,
		},
		FreeWeb: FreeWebConfig{
			Enabled:        true,
			BaseURL:        defaultFreeWebURL,
			Model:          defaultFreeWebModel,
			TimeoutSeconds: defaultLocalTimeout,
		},
		Memory: MemoryConfig{
			Enabled:            true,
			Path:               "memory.db",
			Limit:              defaultMemoryLimit,
			SourceLabel:        defaultMemorySource,
			SaveTimeoutSeconds: defaultMemorySaveSecs,
		},
		Server: ServerConfig{
			Host: defaultServerHost,
			Port: defaultServerPort,
		},
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

// GetConfigFilePath determines the configuration file path based on XDG specs:
// $XDG_CONFIG_HOME/xoswarm/config.toml, or $HOME/.config/xoswarm/config.toml.
//
// The returned path may not exist.
func GetConfigFilePath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine user home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configHome, appName, configFileName), nil
}

// Load reads the XDG configuration file when it exists, falls back to defaults
// when it does not, applies environment overrides and validates the result.
func Load() (Config, error) {
	cfgPath, err := GetConfigFilePath()
	if err != nil {
		return Config{}, fmt.Errorf("failed to determine config path: %w", err)
	}

	cfg := defaultConfig()
	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err = LoadFromFile(cfgPath)
		if err != nil {
			return Config{}, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to access config file %s: %w", cfgPath, err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file path and merges it
// over the defaults. Environment overrides are not applied.
func LoadFromFile(filePath string) (Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("configuration file not found at %s", filePath)
		}
		return Config{}, fmt.Errorf("failed to access config file %s: %w", filePath, err)
	}

	meta, err := toml.DecodeFile(filePath, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode TOML config file %s: %w", filePath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown configuration keys in %s: %v", filePath, undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as TOML to filePath, creating parent directories.
func Save(cfg Config, filePath string) error {
	configDir := filepath.Dir(filePath)
	if err := os.MkdirAll(configDir, DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", filePath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration to TOML: %w", err)
	}
	return nil
}

// NewConfig creates a configuration programmatically. Provider entries in
// providers replace the defaults for the same key; everything else keeps its
// default value.
func NewConfig(timeoutSeconds int, providers map[string]LLMConfig) Config {
	cfg := defaultConfig()
	cfg.RequestTimeoutSeconds = timeoutSeconds
	for name, llmCfg := range providers {
		cfg.LLMs[name] = llmCfg
	}
	return cfg
}

// ApplyEnv overlays environment variables on top of the configuration.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if c.LLMs == nil {
		c.LLMs = map[string]LLMConfig{}
	}
	keys := map[string]string{
		"OPENAI_API_KEY":     ProviderOpenAI,
		"ANTHROPIC_API_KEY":  ProviderAnthropic,
		"GOOGLE_API_KEY":     ProviderGemini,
		"PERPLEXITY_API_KEY": ProviderPerplexity,
		"GROQ_API_KEY":       ProviderGroq,
	}
	for env, provider := range keys {
		if v, ok := lookup(env); ok && v != "" {
			llmCfg := c.LLMs[provider]
			llmCfg.APIKey = v
			c.LLMs[provider] = llmCfg
		}
	}

	host, hasHost := lookup("OLLAMA_HOST")
	port, hasPort := lookup("OLLAMA_PORT")
	if hasHost || hasPort {
		if !hasHost || host == "" {
			host = "localhost"
		}
		if !hasPort || port == "" {
			port = "11434"
		}
		llmCfg := c.LLMs[ProviderOllama]
		llmCfg.BaseURL = fmt.Sprintf("http://%s:%s", host, port)
		c.LLMs[ProviderOllama] = llmCfg
	}

	if v, ok := lookup("API_TIMEOUT"); ok {
		if secs, ok := parseSeconds(v); ok {
			c.RequestTimeoutSeconds = secs
		}
	}
	if v, ok := lookup("OLLAMA_TIMEOUT"); ok {
		if secs, ok := parseSeconds(v); ok {
			c.LocalTimeoutSeconds = secs
		}
	}
	if v, ok := lookup("MEMORY_DB_PATH"); ok && v != "" {
		c.Memory.Path = v
	}
	if v, ok := lookup("ENABLE_MEMORY"); ok {
		c.Memory.Enabled = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("ENABLE_G4F"); ok {
		c.FreeWeb.Enabled = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("API_HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if v, ok := lookup("API_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// parseSeconds accepts "30" and "30.0" style values.
func parseSeconds(v string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int(f), true
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("invalid request_timeout_seconds: must not be negative, got %d", c.RequestTimeoutSeconds)
	}
	if c.LocalTimeoutSeconds < 0 {
		return fmt.Errorf("invalid local_timeout_seconds: must not be negative, got %d", c.LocalTimeoutSeconds)
	}
	if c.Synthesis.TotalTimeoutSeconds < 0 {
		return fmt.Errorf("invalid synthesis.total_timeout_seconds: must not be negative, got %d", c.Synthesis.TotalTimeoutSeconds)
	}
	if err := validateHTTPURL(c.OllamaURL()); err != nil {
		return fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	if c.Synthesis.Endpoint != "" {
		if err := validateHTTPURL(c.Synthesis.Endpoint); err != nil {
			return fmt.Errorf("invalid synthesis endpoint: %w", err)
		}
	}
	if c.FreeWeb.Enabled {
		if err := validateHTTPURL(c.FreeWeb.BaseURL); err != nil {
			return fmt.Errorf("invalid free_web base URL: %w", err)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func validateHTTPURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("URL scheme must be http or https")
	}
	return nil
}

// GetLLMConfig retrieves the specific configuration for a given provider.
func (c *Config) GetLLMConfig(provider string) (LLMConfig, bool) {
	llmCfg, exists := c.LLMs[provider]
	return llmCfg, exists
}

// APIKey returns the credential configured for provider, or "".
func (c Config) APIKey(provider string) string {
	return c.LLMs[provider].APIKey
}

// OllamaURL returns the configured Ollama base URL.
func (c Config) OllamaURL() string {
	if u := c.LLMs[ProviderOllama].BaseURL; u != "" {
		return u
	}
	return defaultOllamaURL
}

// SynthesisEndpoint returns the primary synthesizer base URL.
func (c Config) SynthesisEndpoint() string {
	if c.Synthesis.Endpoint != "" {
		return c.Synthesis.Endpoint
	}
	return c.OllamaURL()
}

// CloudTimeout is the per-call timeout for hosted cloud APIs.
func (c Config) CloudTimeout() time.Duration {
	return seconds(c.RequestTimeoutSeconds, defaultCloudTimeout)
}

// LocalTimeout is the per-call timeout for local inference endpoints.
func (c Config) LocalTimeout() time.Duration {
	return seconds(c.LocalTimeoutSeconds, defaultLocalTimeout)
}

// FreeWebTimeout is the per-call timeout for the free-web backend.
func (c Config) FreeWebTimeout() time.Duration {
	return seconds(c.FreeWeb.TimeoutSeconds, defaultLocalTimeout)
}

// SynthesisTimeout is the timeout of the primary synthesis call.
func (c Config) SynthesisTimeout() time.Duration {
	return seconds(c.Synthesis.TimeoutSeconds, defaultLocalTimeout)
}

// CloudSynthesisTimeout is the timeout of the cloud synthesis fallback.
func (c Config) CloudSynthesisTimeout() time.Duration {
	return seconds(c.Synthesis.CloudTimeoutSeconds, defaultCloudTimeout)
}

// MemorySaveTimeout bounds a single background memory write.
func (c Config) MemorySaveTimeout() time.Duration {
	return seconds(c.Memory.SaveTimeoutSeconds, defaultMemorySaveSecs)
}

// ListenAddr returns host:port for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
