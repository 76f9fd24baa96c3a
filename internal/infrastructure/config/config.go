// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	threshold := cfg.Reconciliation.SimilarityThreshold
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the entire application configuration
type Config struct {
	Storage        StorageConfig        `yaml:"storage"`
	API            APIConfig            `yaml:"api"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Extraction     ExtractionConfig     `yaml:"extraction"`
	OpenAI         OpenAIConfig         `yaml:"openai"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ReconciliationConfig holds matching defaults applied to every session
type ReconciliationConfig struct {
	SimilarityThreshold  float64  `yaml:"similarity_threshold"`
	DayTolerance         int      `yaml:"day_tolerance"`
	IgnoredKeywords      []string `yaml:"ignored_keywords"`
	ContributionKeywords []string `yaml:"contribution_keywords"`
}

// ExtractionConfig tunes the extraction selector
type ExtractionConfig struct {
	AIAttempts  uint          `yaml:"ai_attempts"`
	AIDelay     time.Duration `yaml:"ai_delay"`
	PageWorkers int           `yaml:"page_workers"`
}

// OpenAIConfig holds the AI extraction fallback settings. The fallback is
// disabled when APIKey is empty.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DatabasePath: "reconciler.db"},
		API:     APIConfig{Port: 8085, AllowedOrigins: []string{"http://localhost:3000"}},
		Reconciliation: ReconciliationConfig{
			SimilarityThreshold:  55,
			DayTolerance:         2,
			IgnoredKeywords:      []string{"pix", "ted", "doc", "transferencia", "recebido", "recebida"},
			ContributionKeywords: []string{"dizimo", "oferta", "missoes"},
		},
		Extraction: ExtractionConfig{
			AIAttempts:  3,
			AIDelay:     500 * time.Millisecond,
			PageWorkers: 4,
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o",
			BaseURL: "https://api.openai.com/v1",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "maven"},
		},
	}
}

// Load reads and parses the config file. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${OPENAI_API_KEY})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	def := Default()
	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILER_DB_PATH", def.Storage.DatabasePath),
		},
		API: APIConfig{
			Port:           getEnvInt("RECONCILER_PORT", def.API.Port),
			AllowedOrigins: getEnvList("RECONCILER_ALLOWED_ORIGINS", def.API.AllowedOrigins),
		},
		Reconciliation: ReconciliationConfig{
			SimilarityThreshold:  getEnvFloat("RECONCILER_SIMILARITY_THRESHOLD", def.Reconciliation.SimilarityThreshold),
			DayTolerance:         getEnvInt("RECONCILER_DAY_TOLERANCE", def.Reconciliation.DayTolerance),
			IgnoredKeywords:      getEnvList("RECONCILER_IGNORED_KEYWORDS", def.Reconciliation.IgnoredKeywords),
			ContributionKeywords: getEnvList("RECONCILER_CONTRIBUTION_KEYWORDS", def.Reconciliation.ContributionKeywords),
		},
		Extraction: ExtractionConfig{
			AIAttempts:  uint(getEnvInt("RECONCILER_AI_ATTEMPTS", int(def.Extraction.AIAttempts))),
			AIDelay:     def.Extraction.AIDelay,
			PageWorkers: getEnvInt("RECONCILER_PAGE_WORKERS", def.Extraction.PageWorkers),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", def.OpenAI.Model),
			BaseURL: getEnv("OPENAI_BASE_URL", def.OpenAI.BaseURL),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", def.Observability.Logging.Level),
				Format: getEnv("LOG_FORMAT", def.Observability.Logging.Format),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate checks ranges the matcher and extractor depend on
func (c *Config) Validate() error {
	var problems []string
	r := c.Reconciliation
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 100 {
		problems = append(problems, fmt.Sprintf("similarity_threshold %.2f outside [0,100]", r.SimilarityThreshold))
	}
	if r.DayTolerance < 0 {
		problems = append(problems, fmt.Sprintf("day_tolerance %d is negative", r.DayTolerance))
	}
	if c.Extraction.AIAttempts == 0 {
		problems = append(problems, "ai_attempts must be at least 1")
	}
	if c.Extraction.PageWorkers < 1 {
		problems = append(problems, "page_workers must be at least 1")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.API.Port))
	}
	if c.Storage.DatabasePath == "" {
		problems = append(problems, "database_path is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var result float64
		if _, err := fmt.Sscanf(val, "%g", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetAPIKey retrieves an API key from config first, then tries multiple environment variable names
// Usage: GetAPIKey(cfg.OpenAI.APIKey, "OPENAI_API_KEY", "OPENAI_APIKEY")
func (c *Config) GetAPIKey(configValue string, envVarNames ...string) string {
	if configValue != "" {
		return configValue
	}

	for _, envVar := range envVarNames {
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}

	return ""
}
