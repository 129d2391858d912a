package model

import "time"

// Config holds the full caseextract configuration.
// Values are resolved from flags, CASEEXTRACT_* env vars, the config file and these defaults.
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Normalize    NormalizeConfig    `yaml:"normalize" mapstructure:"normalize"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// LLMConfig configures the upstream generation provider
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // gemini, openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP        float64 `yaml:"top_p" mapstructure:"top_p"`
	TopK        int     `yaml:"top_k" mapstructure:"top_k"`
	MaxRetries  uint64  `yaml:"max_retries" mapstructure:"max_retries"`
}

// HTTPConfig configures outbound document downloads
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the generation response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig configures the document worker pool
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig configures per-provider request throttling
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// StorageConfig selects the persistence backend and the local document directory
type StorageConfig struct {
	Driver  string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	PageSize       int           `yaml:"page_size" mapstructure:"page_size"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	ProcessTimeout time.Duration `yaml:"process_timeout" mapstructure:"process_timeout"`
}

// NormalizeConfig configures how raw model output is coerced into case records
type NormalizeConfig struct {
	FieldKeys       []string `yaml:"field_keys" mapstructure:"field_keys"`
	CaseStartKeys   []string `yaml:"case_start_keys" mapstructure:"case_start_keys"`
	ArrayStartKey   string   `yaml:"array_start_key" mapstructure:"array_start_key"`
	RequireStartKey bool     `yaml:"require_start_key" mapstructure:"require_start_key"`
	Lenient         bool     `yaml:"lenient" mapstructure:"lenient"`
	ValidateSchema  bool     `yaml:"validate_schema" mapstructure:"validate_schema"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// DefaultFieldKeys are the column keys "0".."15" requested by the default prompt.
func DefaultFieldKeys() []string {
	return []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13", "14", "15"}
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			Timeout:     120,
			MaxTokens:   8192,
			Temperature: 0.1,
			TopP:        0.8,
			TopK:        40,
			MaxRetries:  3,
		},
		HTTP: HTTPConfig{
			Timeout:       60 * time.Second,
			UserAgent:     "caseextract/0.1 (+https://github.com/ppiankov/caseextract)",
			MaxBodyBytes:  20 << 20,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".caseextract/cache",
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 1.0,
			BurstSize:         2,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DSN:     ".caseextract/caseextract.db",
			DataDir: ".caseextract/data",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 20 << 20,
			PageSize:       10,
			ReadTimeout:    30 * time.Second,
			ProcessTimeout: 10 * time.Minute,
		},
		Normalize: NormalizeConfig{
			FieldKeys:       DefaultFieldKeys(),
			CaseStartKeys:   []string{"0", "3A", "Article Name"},
			ArrayStartKey:   "0",
			RequireStartKey: true,
			Lenient:         true,
			ValidateSchema:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
