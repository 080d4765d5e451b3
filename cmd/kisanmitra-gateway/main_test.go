package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kisanmitra/kisanmitra-gateway/internal/config"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("explicit env var wins", func(t *testing.T) {
		t.Setenv("KISANMITRA_CONFIG", "/etc/kisanmitra.yaml")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, "/etc/kisanmitra.yaml", getConfigPath())
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("KISANMITRA_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "kisanmitra", "gateway.yaml"), getConfigPath())
	})
}

func TestRunHashPassword(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runHashPassword(strings.NewReader("s3cret-pass\n"), &out))

	digest := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(digest), []byte("s3cret-pass")))

	err := runHashPassword(strings.NewReader("\n"), &out)
	assert.Error(t, err)
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config", "gateway.yaml")
	dataPath := filepath.Join(dir, "data")
	t.Setenv("GEMINI_API_KEY", "test-key")

	require.NoError(t, runInit(configPath, dataPath))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataPath, "kisanmitra.db"), cfg.Database.Path)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), 32)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Error(t, runInit(configPath, dataPath), "existing config must not be overwritten")
}

func TestColorHandler(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(newLogHandler(config.LoggingConfig{Level: "warn"}, &out))

	logger.Info("hidden")
	logger.With("component", "auth").WithGroup("req").Warn("auth failure", "reason", "expired")

	line := out.String()
	assert.NotContains(t, line, "hidden")
	assert.Contains(t, line, "auth failure")
	assert.Contains(t, line, "[auth]")
	assert.NotContains(t, line, "component=")
	assert.Contains(t, line, "req.reason=")
	assert.Contains(t, line, "expired")
}

func TestLogHandlers_RedactSecrets(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			var out bytes.Buffer
			logger := slog.New(newLogHandler(config.LoggingConfig{Format: format}, &out))
			logger.Info("registered", "aadhaar_number", "123456789012", "phone", "9876543210")

			assert.NotContains(t, out.String(), "123456789012")
			assert.Contains(t, out.String(), "[redacted]")
			assert.Contains(t, out.String(), "9876543210")
		})
	}
}

func TestJSONHandler(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(newLogHandler(config.LoggingConfig{Level: "debug", Format: "json"}, &out))
	logger.Debug("turn completed", "mode", "stream")

	assert.Contains(t, out.String(), `"msg":"turn completed"`)
	assert.Contains(t, out.String(), `"mode":"stream"`)
}
