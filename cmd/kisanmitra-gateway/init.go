// ABOUTME: init subcommand writing a starter configuration file
// ABOUTME: Generates a random JWT secret and points both databases at the data directory

package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

const configTemplate = `# kisanmitra-gateway configuration
# Generated by kisanmitra-gateway init

server:
  http_addr: "localhost:8000"
  shutdown_timeout: "10s"

database:
  path: %q
  chat_path: %q

auth:
  jwt_secret: %q
  algorithm: "HS256"
  token_ttl: "30m"

cache:
  driver: "memory"
  ttl: "24h"

llm:
  provider: "gemini"
  api_key: "${GEMINI_API_KEY}"
  temperature: 0

gemini:
  api_key: "${GEMINI_API_KEY}"
  model: "gemini-2.5-flash"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"

cors:
  allowed_origins:
    - "http://localhost:3000"
`

// renderConfig returns a starter configuration for dataPath.
func renderConfig(dataPath, jwtSecret string) string {
	return fmt.Sprintf(configTemplate,
		filepath.Join(dataPath, "kisanmitra.db"),
		filepath.Join(dataPath, "chat_history.db"),
		jwtSecret,
	)
}

// runInit writes a config to configPath unless one already exists.
func runInit(configPath, dataPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	// Generate random JWT secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(renderConfig(dataPath, jwtSecret)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Data directory: %s\n", dataPath)
	fmt.Println()
	yellow.Println("  Next:")
	fmt.Println("    export GEMINI_API_KEY=...")
	fmt.Println("    kisanmitra-gateway serve")
	fmt.Println()
	return nil
}
