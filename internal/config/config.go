package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kayz/tgbridge/internal/security"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "tgbridge.yaml"

type Config struct {
	App       AppConfig        `yaml:"app"`
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	LLM       LLMConfig        `yaml:"llm"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	HTTP      HTTPClientConfig `yaml:"http_client"`
	Document  DocumentConfig   `yaml:"document"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Logging   LoggingConfig    `yaml:"logging"`
	Admin     AdminConfig      `yaml:"admin"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig describes the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key,omitempty"`
	DefaultModel       string        `yaml:"default_model"`
	AuthHeader         string        `yaml:"auth_header"`
	AuthPrefix         string        `yaml:"auth_prefix"`
	DefaultTemperature float64       `yaml:"default_temperature"`
	DefaultMaxTokens   int           `yaml:"default_max_tokens"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	Breaker            BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the LLM endpoint.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

type TelegramConfig struct {
	// APIEndpoint is a printf pattern taking the bot token and method name.
	APIEndpoint    string  `yaml:"api_endpoint"`
	SafeLimit      int     `yaml:"safe_limit"`
	PartsPerSecond float64 `yaml:"parts_per_second"`
}

type HTTPClientConfig struct {
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	Timeout               time.Duration `yaml:"timeout"`
	MaxConns              int           `yaml:"max_conns"`
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	Debug                 bool          `yaml:"debug"`
}

type DocumentConfig struct {
	Brand          string `yaml:"brand"`
	LogoPath       string `yaml:"logo_path,omitempty"`
	FontPath       string `yaml:"font_path,omitempty"`
	FontBoldPath   string `yaml:"font_bold_path,omitempty"`
	FilenamePrefix string `yaml:"filename_prefix"`
	Caption        string `yaml:"caption"`
}

type PipelineConfig struct {
	Workers         int           `yaml:"workers"`
	Deadline        time.Duration `yaml:"deadline"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	FallbackText    string        `yaml:"fallback_text"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	File         string `yaml:"file,omitempty"`
	MaxSize      int    `yaml:"max_size"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAge       int    `yaml:"max_age"`
	Compress     bool   `yaml:"compress"`
	Incoming     bool   `yaml:"incoming"`
	IncomingBody bool   `yaml:"incoming_body"`
}

// AdminConfig guards the prompt management routes with HTTP basic auth.
// An empty password leaves them open.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

// ScheduleConfig declares a submission fired on a cron schedule. Request
// uses the same shape as the inbound submit payload.
type ScheduleConfig struct {
	Name    string         `yaml:"name"`
	Cron    string         `yaml:"cron"`
	Request map[string]any `yaml:"request"`
}

func DefaultConfig() *Config {
	return &Config{
		App:      AppConfig{Name: "tgbridge"},
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Path: "./data/app.db"},
		LLM: LLMConfig{
			BaseURL:            "https://api.openai.com",
			DefaultModel:       "gpt-4o-mini",
			AuthHeader:         "Authorization",
			AuthPrefix:         "Bearer",
			DefaultTemperature: 0.2,
			RetryBackoff:       500 * time.Millisecond,
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     10 * time.Second,
				Timeout:      30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Telegram: TelegramConfig{
			APIEndpoint:    "https://api.telegram.org/bot%s/%s",
			SafeLimit:      3900,
			PartsPerSecond: 5,
		},
		HTTP: HTTPClientConfig{
			DialTimeout:           10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			Timeout:               90 * time.Second,
			MaxConns:              500,
			MaxIdleConns:          100,
			MaxConnsPerHost:       100,
		},
		Document: DocumentConfig{
			Brand:          "DailyMind",
			FilenamePrefix: "DailyMind",
			Caption:        "Ваш прогноз",
		},
		Pipeline: PipelineConfig{
			Workers:         32,
			Deadline:        5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			FallbackText:    "Что-то пошло не так, попробуйте позже.",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Incoming:   true,
		},
		Admin: AdminConfig{Username: "admin"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (a
// missing file is not an error), then .env, then the process environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load without the .env step.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.LLM.AuthPrefix = normalizeAuthPrefix(cfg.LLM.AuthPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if err := security.ValidateBaseURL(c.LLM.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("llm.base_url: %v", err))
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "llm.max_retries must not be negative")
	}
	if c.LLM.DefaultMaxTokens < 0 {
		problems = append(problems, "llm.default_max_tokens must not be negative")
	}
	if c.Telegram.SafeLimit <= 0 || c.Telegram.SafeLimit > 4096 {
		problems = append(problems, fmt.Sprintf("telegram.safe_limit %d must be within 1..4096", c.Telegram.SafeLimit))
	}
	if c.Pipeline.Workers <= 0 {
		problems = append(problems, "pipeline.workers must be positive")
	}
	if c.HTTP.MaxConns < 0 || c.HTTP.MaxConnsPerHost < 0 {
		problems = append(problems, "http_client connection limits must not be negative")
	}
	for i, s := range c.Schedules {
		if s.Cron == "" {
			problems = append(problems, fmt.Sprintf("schedules[%d].cron is required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)

	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.DefaultModel = getEnv("LLM_DEFAULT_MODEL", c.LLM.DefaultModel)
	c.LLM.AuthHeader = getEnv("LLM_AUTH_HEADER", c.LLM.AuthHeader)
	c.LLM.AuthPrefix = getEnv("LLM_AUTH_PREFIX", c.LLM.AuthPrefix)
	c.LLM.MaxRetries = getEnvAsInt("LLM_MAX_RETRIES", c.LLM.MaxRetries)

	c.Telegram.APIEndpoint = getEnv("TELEGRAM_API_ENDPOINT", c.Telegram.APIEndpoint)

	c.Document.LogoPath = getEnv("PDF_LOGO_PATH", c.Document.LogoPath)
	c.Document.FontPath = getEnv("PDF_FONT_PATH", c.Document.FontPath)
	c.Document.FontBoldPath = getEnv("PDF_FONT_BOLD_PATH", c.Document.FontBoldPath)

	c.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.Deadline = getEnvAsDuration("PIPELINE_DEADLINE", c.Pipeline.Deadline)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
	c.Logging.Incoming = getEnvAsBool("LOG_INCOMING_PUZZLEBOT", c.Logging.Incoming)
	c.Logging.IncomingBody = getEnvAsBool("LOG_INCOMING_PUZZLEBOT_BODY", c.Logging.IncomingBody)

	c.Admin.Username = getEnv("ADMIN_USERNAME", c.Admin.Username)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)
}

// normalizeAuthPrefix treats "none" and "null" as no prefix at all.
func normalizeAuthPrefix(p string) string {
	p = strings.TrimSpace(p)
	switch strings.ToLower(p) {
	case "none", "null":
		return ""
	}
	return p
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
