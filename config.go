package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type APIProvider string

const (
	ProviderOpenAI    APIProvider = "openai"
	ProviderAnthropic APIProvider = "anthropic"
	ProviderOllama    APIProvider = "ollama"
	ProviderGemini    APIProvider = "gemini"
)

// Config is the resolved configuration for one run: config file values,
// environment bindings, and CLI flag overrides applied on top.
type Config struct {
	GitHubToken   string `mapstructure:"github_token"`
	GitHubBaseURL string `mapstructure:"github_base_url"`

	DatabasePath    string `mapstructure:"database_path"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`

	AgentCommand  string `mapstructure:"agent_command"`
	TranscriptDir string `mapstructure:"transcript_dir"`

	ReplyMaxLength int      `mapstructure:"reply_max_length"`
	ReplyTemplates []string `mapstructure:"reply_templates"`

	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`

	OpenAIModel    string `mapstructure:"openai_model"`
	AnthropicModel string `mapstructure:"anthropic_model"`
	OllamaModel    string `mapstructure:"ollama_model"`
	GeminiModel    string `mapstructure:"gemini_model"`

	OpenAIEndpoint    string      `mapstructure:"openai_endpoint"`
	AnthropicEndpoint string      `mapstructure:"anthropic_endpoint"`
	OllamaEndpoint    string      `mapstructure:"ollama_endpoint"`
	Provider          APIProvider `mapstructure:"provider"`

	AITimeoutSeconds int `mapstructure:"ai_timeout_seconds"`

	// AITimeout is derived from AITimeoutSeconds after loading.
	AITimeout time.Duration `mapstructure:"-"`
	// ConfigFile records which file was loaded, for debug logging.
	ConfigFile string `mapstructure:"-"`
	// DebugWriter receives [debug] lines when verbose mode is on.
	DebugWriter io.Writer `mapstructure:"-"`
}

// CacheTTL returns the metadata freshness window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".reviewdeck")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.AutomaticEnv()
	v.SetEnvPrefix("REVIEWDECK")

	// Bind standard environment variables
	_ = v.BindEnv("github_token", "GITHUB_TOKEN")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY")

	return loadConfigWith(v)
}

func loadConfigWith(v *viper.Viper) (*Config, error) {
	applyConfigDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()
	finaliseConfig(cfg)
	return cfg, nil
}

// applyConfigDefaults installs the defaults consulted when the config file
// or environment leaves a key unset.
func applyConfigDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_endpoint", "https://api.openai.com/v1/")
	v.SetDefault("anthropic_model", "claude-sonnet-4-6")
	v.SetDefault("anthropic_endpoint", "https://api.anthropic.com")
	v.SetDefault("ollama_model", "llama3")
	v.SetDefault("ollama_endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("cache_ttl_seconds", 300)
	v.SetDefault("agent_command", "codex")
	v.SetDefault("reply_max_length", 2000)
	v.SetDefault("ai_timeout_seconds", 30)
	v.SetDefault("database_path", defaultDatabasePath())
	v.SetDefault("transcript_dir", defaultTranscriptDir())
}

// finaliseConfig derives computed fields and normalises out-of-range values.
func finaliseConfig(cfg *Config) {
	cfg.AITimeout = time.Duration(cfg.AITimeoutSeconds) * time.Second
	if cfg.ReplyMaxLength < 1 {
		cfg.ReplyMaxLength = 1
	}
	if len(cfg.ReplyTemplates) == 0 {
		cfg.ReplyTemplates = defaultReplyTemplates()
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reviewdeck.db"
	}
	return filepath.Join(home, ".reviewdeck", "cache.db")
}

func defaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".reviewdeck", "transcripts")
}

// getModelName returns the configured model name for the active provider.
func getModelName(cfg *Config) string {
	switch cfg.Provider {
	case ProviderOpenAI:
		return cfg.OpenAIModel
	case ProviderAnthropic:
		return cfg.AnthropicModel
	case ProviderGemini:
		return cfg.GeminiModel
	case ProviderOllama:
		return cfg.OllamaModel
	default:
		return "unknown"
	}
}

// validateProviderConfig checks that the active AI provider has the
// credentials it needs. Missing credentials are configuration errors, never
// fallbacks.
func validateProviderConfig(cfg *Config) error {
	if cfg.Provider != ProviderOpenAI && cfg.Provider != ProviderAnthropic && cfg.Provider != ProviderOllama && cfg.Provider != ProviderGemini {
		return &ConfigError{Message: "unsupported provider: " + string(cfg.Provider)}
	}
	if cfg.Provider == ProviderOpenAI && cfg.OpenAIAPIKey == "" {
		return &ConfigError{Message: "missing OpenAI API key.\n\n" +
			"Please set the OPENAI_API_KEY environment variable or configure 'openai_api_key' in ~/.reviewdeck.toml"}
	}
	if cfg.Provider == ProviderAnthropic && cfg.AnthropicAPIKey == "" {
		return &ConfigError{Message: "missing Anthropic API key.\n\n" +
			"Please set the ANTHROPIC_API_KEY environment variable or configure 'anthropic_api_key' in ~/.reviewdeck.toml"}
	}
	if cfg.Provider == ProviderGemini && cfg.GeminiAPIKey == "" {
		return &ConfigError{Message: "missing Gemini API key.\n\n" +
			"Please set the GEMINI_API_KEY environment variable or configure 'gemini_api_key' in ~/.reviewdeck.toml"}
	}
	return nil
}
