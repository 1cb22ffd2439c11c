package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"` // tint, text or json

	Solver   SolverConfig   `yaml:"solver"`
	Target   TargetConfig   `yaml:"target"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SolverConfig locates the challenge-solving proxy
type SolverConfig struct {
	UseSSL     bool          `yaml:"use_ssl"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Session    string        `yaml:"session"`
	MaxTimeout time.Duration `yaml:"max_timeout"`
}

// TargetConfig for the crawled site
type TargetConfig struct {
	BaseURL     string `yaml:"base_url"`
	SearchPath  string `yaml:"search_path"`
	ImagePrefix string `yaml:"image_prefix"`
}

// CrawlConfig paces page requests. Zero values disable pacing.
type CrawlConfig struct {
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
	MinDelay             time.Duration `yaml:"min_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
}

// TelegramConfig for crawl notifications
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Enabled  bool   `yaml:"enabled"`
}

// Endpoint returns the solver's command URL.
func (s SolverConfig) Endpoint() string {
	scheme := "http"
	if s.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/v1", scheme, s.Host, s.Port)
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "data/bdscrawler.db",
		LogLevel:     "info",
		LogFormat:    "tint",
		Solver: SolverConfig{
			Host:       "localhost",
			Port:       8191,
			Session:    "batdongsan.com.vn_solver",
			MaxTimeout: 60 * time.Second,
		},
		Target: TargetConfig{
			BaseURL:     "https://batdongsan.com.vn",
			SearchPath:  "/microservice-architecture-router/Product/ProductSearch",
			ImagePrefix: "https://file4.batdongsan.com.vn/",
		},
	}
}

// Load reads configuration from YAML file and environment variables
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Read YAML file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Override with environment variables
	if v := os.Getenv("FLARESOLVER_USE_SSL"); v != "" {
		cfg.Solver.UseSSL = true
	}
	if v := os.Getenv("FLARESOLVER_HOST"); v != "" {
		cfg.Solver.Host = v
	}
	if v := os.Getenv("FLARESOLVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FLARESOLVER_PORT: %w", err)
		}
		cfg.Solver.Port = port
	}
	if v := os.Getenv("FLARESOLVER_SESSION"); v != "" {
		cfg.Solver.Session = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = chatID
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Solver.Host == "" {
		return fmt.Errorf("solver host is required")
	}
	if c.Solver.Port <= 0 || c.Solver.Port > 65535 {
		return fmt.Errorf("solver port out of range: %d", c.Solver.Port)
	}
	if c.Solver.Session == "" {
		return fmt.Errorf("solver session name is required")
	}
	if c.Solver.MaxTimeout <= 0 {
		return fmt.Errorf("solver max_timeout must be positive")
	}
	if c.Target.BaseURL == "" || c.Target.SearchPath == "" || c.Target.ImagePrefix == "" {
		return fmt.Errorf("target base_url, search_path and image_prefix are required")
	}
	if c.Crawl.MaxDelay < c.Crawl.MinDelay {
		return fmt.Errorf("crawl max_delay (%s) is below min_delay (%s)", c.Crawl.MaxDelay, c.Crawl.MinDelay)
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram enabled without bot_token or chat_id")
	}
	return nil
}
