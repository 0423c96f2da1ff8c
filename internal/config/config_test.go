package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8090" {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Proxy.Provider != "gemini" || cfg.Proxy.ImageStrategy != ImageStrategyDirect {
		t.Fatalf("unexpected proxy defaults: %+v", cfg.Proxy)
	}
	if got := cfg.Providers["gemini"].APIKeyEnv; got != "GEMINI_API_KEY" {
		t.Fatalf("expected GEMINI_API_KEY, got %q", got)
	}
	if cfg.BasicConfig.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.BasicConfig.TokenTTL)
	}
}

func TestLoadResolvesRelativeSQLitePath(t *testing.T) {
	path := writeConfig(t, `
basic_config:
  server_address: ":9000"
databases:
  sqlite3:
    dsn: data/chat.db
proxy:
  image_strategy: describe
  image_probe_timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "data", "chat.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("address not read from file: %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Proxy.ImageStrategy != ImageStrategyDescribe || cfg.Proxy.ImageProbeTimeout != 3*time.Second {
		t.Fatalf("proxy config not read: %+v", cfg.Proxy)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
basic_config:
  server_address: ":9000"
`)
	t.Setenv("GEMCHAT_ADDR", ":7000")
	t.Setenv("GEMCHAT_PROVIDER", "openai")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":7000" {
		t.Fatalf("env override ignored: %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Proxy.Provider != "openai" {
		t.Fatalf("provider override ignored: %q", cfg.Proxy.Provider)
	}
}

func TestLoadRejectsUnknownImageStrategy(t *testing.T) {
	path := writeConfig(t, `
proxy:
  image_strategy: watercolor
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("GEMCHAT_PROVIDER", "llama")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

func TestLoadDotEnvSetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GEMCHAT_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("GEMCHAT_DOTENV_PROBE", "")
	os.Unsetenv("GEMCHAT_DOTENV_PROBE")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if got := os.Getenv("GEMCHAT_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("expected variable from .env, got %q", got)
	}
}
