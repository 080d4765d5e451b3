// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8000"
  shutdown_timeout: "15s"

database:
  path: "./data/app.db"
  chat_path: "./data/chat.db"

auth:
  jwt_secret: "`+testSecret+`"
  algorithm: "HS512"
  token_ttl: "45m"

cache:
  driver: "redis"
  redis_addr: "localhost:6379"
  redis_db: 2
  ttl: "1h"

llm:
  provider: "openai"
  model: "gpt-4o-mini"
  api_key: "sk-test"
  base_url: "http://localhost:11434/v1"
  temperature: 0.2

gemini:
  api_key: "gm-test"

models:
  crop_path: "/models/crop.yaml"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true

cors:
  allowed_origins:
    - "http://localhost:5173"
    - "https://kisanmitra.example"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8000")
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 15*time.Second)
	}
	if cfg.Database.ChatPath != "./data/chat.db" {
		t.Errorf("Database.ChatPath = %q, want %q", cfg.Database.ChatPath, "./data/chat.db")
	}
	if cfg.Auth.Algorithm != "HS512" {
		t.Errorf("Auth.Algorithm = %q, want HS512", cfg.Auth.Algorithm)
	}
	if cfg.Auth.TokenTTL != 45*time.Minute {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 45*time.Minute)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.RedisDB != 2 {
		t.Errorf("Cache = %+v, want redis db 2", cfg.Cache)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Gemini.Model = %q, want default", cfg.Gemini.Model)
	}
	if cfg.Models.CropPath != "/models/crop.yaml" || cfg.Models.YieldPath != "" {
		t.Errorf("Models = %+v", cfg.Models)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("CORS.AllowedOrigins len = %d, want 2", len(cfg.CORS.AllowedOrigins))
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8000"
database:
  path: "app.db"
auth:
  jwt_secret: "`+testSecret+`"
gemini:
  api_key: "gm"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"chat path", cfg.Database.ChatPath, "app.db.chat"},
		{"shutdown", cfg.Server.ShutdownTimeout, 10 * time.Second},
		{"algorithm", cfg.Auth.Algorithm, "HS256"},
		{"token ttl", cfg.Auth.TokenTTL, 30 * time.Minute},
		{"cache driver", cfg.Cache.Driver, "memory"},
		{"llm provider", cfg.LLM.Provider, "gemini"},
		{"summary timeout", cfg.LLM.SummaryTimeout, 60 * time.Second},
		{"log level", cfg.Logging.Level, "info"},
		{"log format", cfg.Logging.Format, "text"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_KM_SECRET", testSecret)
	t.Setenv("TEST_KM_GEMINI", "from-env")

	path := writeConfig(t, `
server:
  http_addr: ":8000"
database:
  path: "app.db"
auth:
  jwt_secret: "${TEST_KM_SECRET}"
gemini:
  api_key: "${TEST_KM_GEMINI}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret not expanded: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Gemini.APIKey != "from-env" {
		t.Errorf("Gemini.APIKey = %q, want from-env", cfg.Gemini.APIKey)
	}
}

func TestExpandEnvVars_Unset(t *testing.T) {
	os.Unsetenv("TEST_KM_DEFINITELY_UNSET")
	got := expandEnvVars("key: ${TEST_KM_DEFINITELY_UNSET}!")
	if got != "key: !" {
		t.Errorf("expandEnvVars = %q, want %q", got, "key: !")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	base := map[string]string{
		"server":   "server:\n  http_addr: \":8000\"\n",
		"database": "database:\n  path: \"app.db\"\n",
		"auth":     "auth:\n  jwt_secret: \"" + testSecret + "\"\n",
		"gemini":   "gemini:\n  api_key: \"gm\"\n",
	}
	build := func(overrides map[string]string) string {
		var b strings.Builder
		for _, k := range []string{"server", "database", "auth", "gemini", "cache", "llm", "logging"} {
			if v, ok := overrides[k]; ok {
				b.WriteString(v)
				continue
			}
			b.WriteString(base[k])
		}
		return b.String()
	}

	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   string
	}{
		{"missing http addr", map[string]string{"server": ""}, "server.http_addr is required"},
		{"missing database", map[string]string{"database": ""}, "database.path is required"},
		{"same db paths", map[string]string{"database": "database:\n  path: a.db\n  chat_path: a.db\n"}, "must differ"},
		{"short secret", map[string]string{"auth": "auth:\n  jwt_secret: short\n"}, "at least 32 bytes"},
		{"bad algorithm", map[string]string{"auth": "auth:\n  jwt_secret: \"" + testSecret + "\"\n  algorithm: RS256\n"}, "auth.algorithm"},
		{"bad cache driver", map[string]string{"cache": "cache:\n  driver: memcached\n"}, "cache.driver"},
		{"redis without addr", map[string]string{"cache": "cache:\n  driver: redis\n"}, "cache.redis_addr"},
		{"bad provider", map[string]string{"llm": "llm:\n  provider: claude\n"}, "llm.provider"},
		{"openai without key", map[string]string{"llm": "llm:\n  provider: openai\n"}, "llm.api_key"},
		{"temperature range", map[string]string{"llm": "llm:\n  temperature: 3\n"}, "llm.temperature"},
		{"missing gemini key", map[string]string{"gemini": "", "llm": "llm:\n  provider: openai\n  api_key: sk\n"}, "gemini.api_key is required"},
		{"bad log format", map[string]string{"logging": "logging:\n  format: xml\n"}, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(build(tt.overrides)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8000"
database:
  path: "app.db"
auth:
  jwt_secret: "`+testSecret+`"
  token_ttl: "forever"
gemini:
  api_key: "gm"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "auth.token_ttl") {
		t.Errorf("error = %q, want mention of auth.token_ttl", err.Error())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading config file error", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parsing config file error", err)
	}
}
