package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `yaml:"databases"`
	Redis       RedisConfig               `yaml:"redis"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Proxy       ProxyConfig               `yaml:"proxy"`
	Log         LogConfig                 `yaml:"log"`
}

type BasicConfig struct {
	ServerAddress      string        `yaml:"server_address" env:"GEMCHAT_ADDR"`
	TokenTTL           time.Duration `yaml:"token_ttl" env:"GEMCHAT_TOKEN_TTL"`
	TokenCleanInterval time.Duration `yaml:"token_clean_interval" env:"GEMCHAT_TOKEN_CLEAN_INTERVAL"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	Params   string `yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"GEMCHAT_REDIS_ENABLED"`
	Host     string `yaml:"host" env:"GEMCHAT_REDIS_HOST"`
	Port     int    `yaml:"port" env:"GEMCHAT_REDIS_PORT"`
	Username string `yaml:"username"`
	Password string `yaml:"password" env:"GEMCHAT_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"GEMCHAT_REDIS_DB"`
}

// ProviderConfig describes one remote model gateway. The API key itself is
// never stored in the file; it is read from APIKeyEnv on every request.
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type ProxyConfig struct {
	Provider          string        `yaml:"provider" env:"GEMCHAT_PROVIDER"`
	ImageStrategy     string        `yaml:"image_strategy" env:"GEMCHAT_IMAGE_STRATEGY"`
	ImageEndpoint     string        `yaml:"image_endpoint" env:"GEMCHAT_IMAGE_ENDPOINT"`
	ImageProbeTimeout time.Duration `yaml:"image_probe_timeout"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps" env:"GEMCHAT_RATE_LIMIT_RPS"`
	RateLimitBurst    int           `yaml:"rate_limit_burst" env:"GEMCHAT_RATE_LIMIT_BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"GEMCHAT_LOG_LEVEL"`
	Format string `yaml:"format" env:"GEMCHAT_LOG_FORMAT"`
}

const (
	ImageStrategyDirect   = "direct"
	ImageStrategyDescribe = "describe"
)

// LoadDotEnv loads variables from the given .env files (default ".env").
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the provided path (defaults to config.yaml),
// then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.applyDefaults()

	for name, db := range cfg.Databases {
		if !isSQLite(name) || db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, ok := c.Providers[c.Proxy.Provider]; !ok {
		return fmt.Errorf("provider %q not configured", c.Proxy.Provider)
	}
	switch c.Proxy.ImageStrategy {
	case ImageStrategyDirect, ImageStrategyDescribe:
	default:
		return fmt.Errorf("unknown image_strategy %q", c.Proxy.ImageStrategy)
	}
	if c.Proxy.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps cannot be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.TokenTTL <= 0 {
		c.BasicConfig.TokenTTL = 24 * time.Hour
	}
	if c.BasicConfig.TokenCleanInterval <= 0 {
		c.BasicConfig.TokenCleanInterval = time.Hour
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "gemchat.db"}
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	defaults := map[string]ProviderConfig{
		"gemini": {Model: "gemini-1.5-flash", APIKeyEnv: "GEMINI_API_KEY"},
		"openai": {Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
		"claude": {Model: "claude-3-5-haiku-latest", APIKeyEnv: "ANTHROPIC_API_KEY"},
	}
	for name, def := range defaults {
		p, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = def
			continue
		}
		if p.Model == "" {
			p.Model = def.Model
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = def.APIKeyEnv
		}
		c.Providers[name] = p
	}
	if c.Proxy.Provider == "" {
		c.Proxy.Provider = "gemini"
	}
	if c.Proxy.ImageStrategy == "" {
		c.Proxy.ImageStrategy = ImageStrategyDirect
	}
	if c.Proxy.ImageEndpoint == "" {
		c.Proxy.ImageEndpoint = "https://image.pollinations.ai/prompt/"
	}
	if c.Proxy.ImageProbeTimeout <= 0 {
		c.Proxy.ImageProbeTimeout = 10 * time.Second
	}
	if c.Proxy.RateLimitRPS == 0 {
		c.Proxy.RateLimitRPS = 5
	}
	if c.Proxy.RateLimitBurst <= 0 {
		c.Proxy.RateLimitBurst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
