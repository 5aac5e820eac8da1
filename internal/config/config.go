// Package config holds operator-level configuration for a Beaver installation.
//
// Everything here is infrastructure config set by whoever deploys the agent:
// data directory, vault encryption key, detection thresholds, LLM provider
// selection, request limits. Set via env vars (BEAVER_*) or a config file
// (beaver.config.yaml). LLM and search API keys are read from env as well;
// they never appear in logs or error payloads.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the BEAVER_ prefix
// (e.g. "vault_key" → BEAVER_VAULT_KEY) and to a YAML field in
// beaver.config.yaml.
const (
	KeyDataDir             = "data_dir"
	KeyVaultKey            = "vault_key"
	KeyVaultTTLSeconds     = "vault_ttl_seconds"
	KeyPIIThreshold        = "pii_confidence_threshold"
	KeyRoutingThreshold    = "routing_confidence_threshold"
	KeySummarizeThreshold  = "summarize_threshold_chars"
	KeyMaxEmailChars       = "max_email_chars"
	KeyMaxRetries          = "max_retries"
	KeyProcessTimeoutSecs  = "process_timeout_seconds"
	KeyLLMProvider         = "llm_provider"
	KeyLLMModel            = "llm_model"
	KeyOpenAIAPIKey        = "openai_api_key"
	KeyOllamaBaseURL       = "ollama_base_url"
	KeyTavilyAPIKey        = "tavily_api_key"
	KeyRateLimitPerMinute  = "rate_limit_per_minute"
)

// Defaults that do not involve crypto material. The vault key intentionally
// has no baked-in default — when unset we derive a deterministic per-machine
// fallback and warn loudly.
const (
	DefaultVaultTTLSeconds     = 3600
	DefaultPIIThreshold        = 0.60
	DefaultRoutingThreshold    = 0.70
	DefaultSummarizeThreshold  = 3000
	DefaultMaxEmailChars       = 20000
	DefaultMaxRetries          = 3
	DefaultProcessTimeoutSecs  = 120
	DefaultLLMProvider         = "openai"
	DefaultLLMModel            = "gpt-4o-mini"
	DefaultOllamaURL           = "http://localhost:11434"
	DefaultRateLimitPerMinute  = 10
)

// Config holds resolved operator-level configuration for a Beaver process.
type Config struct {
	DataDir            string  // Base directory for all state (~/.beaver)
	VaultKey           string  // AES-256 key for PII vault values (32 bytes or 64 hex chars)
	VaultTTLSeconds    int     // Token record lifetime
	PIIThreshold       float64 // Minimum detector confidence for redaction
	RoutingThreshold   float64 // Minimum cheap-tier confidence to skip the expensive tier
	SummarizeThreshold int     // Redacted-text length above which the writer summarizes first
	MaxEmailChars      int     // Input size bound, checked before any PII scan
	MaxRetries         int     // Bounded redraft loop
	ProcessTimeoutSecs int     // Overall per-request deadline
	LLMProvider        string  // "openai" or "ollama"
	LLMModel           string
	OpenAIAPIKey       string
	OllamaBaseURL      string
	TavilyAPIKey       string
	RateLimitPerMinute int

	usingDefaultVaultKey bool
}

// UsingDefaultVaultKey returns true if the vault encryption key was derived
// (not set explicitly). Commands should warn when this is the case.
func (c *Config) UsingDefaultVaultKey() bool {
	return c.usingDefaultVaultKey
}

// LeadsDBPath returns the full path to the leads SQLite database.
func (c *Config) LeadsDBPath() string {
	return filepath.Join(c.DataDir, "leads.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the vault key is not explicitly set.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultVaultKey {
		log.Warn().Msg("Using generated default BEAVER_VAULT_KEY — set via env var or config file for production")
	}
}

func init() {
	viper.SetEnvPrefix("BEAVER")
	viper.AutomaticEnv()
	viper.SetDefault(KeyVaultTTLSeconds, DefaultVaultTTLSeconds)
	viper.SetDefault(KeyPIIThreshold, DefaultPIIThreshold)
	viper.SetDefault(KeyRoutingThreshold, DefaultRoutingThreshold)
	viper.SetDefault(KeySummarizeThreshold, DefaultSummarizeThreshold)
	viper.SetDefault(KeyMaxEmailChars, DefaultMaxEmailChars)
	viper.SetDefault(KeyMaxRetries, DefaultMaxRetries)
	viper.SetDefault(KeyProcessTimeoutSecs, DefaultProcessTimeoutSecs)
	viper.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	viper.SetDefault(KeyLLMModel, DefaultLLMModel)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	viper.SetDefault(KeyRateLimitPerMinute, DefaultRateLimitPerMinute)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:            resolveDataDir(),
		VaultKey:           viper.GetString(KeyVaultKey),
		VaultTTLSeconds:    viper.GetInt(KeyVaultTTLSeconds),
		PIIThreshold:       viper.GetFloat64(KeyPIIThreshold),
		RoutingThreshold:   viper.GetFloat64(KeyRoutingThreshold),
		SummarizeThreshold: viper.GetInt(KeySummarizeThreshold),
		MaxEmailChars:      viper.GetInt(KeyMaxEmailChars),
		MaxRetries:         viper.GetInt(KeyMaxRetries),
		ProcessTimeoutSecs: viper.GetInt(KeyProcessTimeoutSecs),
		LLMProvider:        viper.GetString(KeyLLMProvider),
		LLMModel:           viper.GetString(KeyLLMModel),
		OpenAIAPIKey:       viper.GetString(KeyOpenAIAPIKey),
		OllamaBaseURL:      viper.GetString(KeyOllamaBaseURL),
		TavilyAPIKey:       viper.GetString(KeyTavilyAPIKey),
		RateLimitPerMinute: viper.GetInt(KeyRateLimitPerMinute),
	}

	if cfg.VaultKey == "" {
		cfg.VaultKey = deriveDefaultKey(cfg.DataDir, "pii-vault-encryption")
		cfg.usingDefaultVaultKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".beaver"
	}
	return filepath.Join(home, ".beaver")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. This is NOT cryptographically strong — it
// exists solely so `beaver serve` works out of the box while still encrypting
// vault values at rest with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("beaver:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateVaultKey(c.VaultKey); err != nil {
		return err
	}
	if c.PIIThreshold < 0 || c.PIIThreshold > 1 {
		return fmt.Errorf("pii_confidence_threshold must be in [0,1], got %v", c.PIIThreshold)
	}
	if c.RoutingThreshold < 0 || c.RoutingThreshold > 1 {
		return fmt.Errorf("routing_confidence_threshold must be in [0,1], got %v", c.RoutingThreshold)
	}
	if c.VaultTTLSeconds < 60 {
		return fmt.Errorf("vault_ttl_seconds must be at least 60, got %d", c.VaultTTLSeconds)
	}
	if c.MaxEmailChars < 100 {
		return fmt.Errorf("max_email_chars must be at least 100, got %d", c.MaxEmailChars)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.ProcessTimeoutSecs < 1 {
		return fmt.Errorf("process_timeout_seconds must be positive, got %d", c.ProcessTimeoutSecs)
	}
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("llm_provider must be openai or ollama, got %q", c.LLMProvider)
	}
	return nil
}

// validateVaultKey accepts either 32 raw bytes or 64 hex characters
// (decodes to 32 bytes for AES-256).
func validateVaultKey(key string) error {
	n := len(key)
	if n == 32 {
		return nil
	}
	if n == 64 && isHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return fmt.Errorf("vault_key hex must decode to 32 bytes: %w", err)
		}
		return nil
	}
	return fmt.Errorf("vault_key must be exactly 32 bytes or 64 hex characters (got %d); set BEAVER_VAULT_KEY", n)
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
