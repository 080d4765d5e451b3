// ABOUTME: Entry point for the kisanmitra-gateway HTTP server
// ABOUTME: Subcommands: serve, init, health, hash-password

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
	"github.com/kisanmitra/kisanmitra-gateway/internal/config"
	"github.com/kisanmitra/kisanmitra-gateway/internal/gateway"
)

// version is overridden with -ldflags "-X main.version=..." at release time.
var version = "dev"

const banner = `
 _    _                         _ _
| | _(_)___  __ _ _ __    _ __ (_) |_ _ __ __ _
| |/ / / __|/ _' | '_ \  | '_ ' _ \ | __| '__/ _' |
|   <| \__ \ (_| | | | | | | | | | | |_| | | (_| |
|_|\_\_|___/\__,_|_| |_| |_| |_| |_|_|\__|_|  \__,_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: KISANMITRA_CONFIG env var > XDG_CONFIG_HOME/kisanmitra/gateway.yaml > ~/.config/kisanmitra/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("KISANMITRA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "kisanmitra", "gateway.yaml")
}

// getDataPath returns the directory holding the SQLite files.
// Priority: XDG_DATA_HOME/kisanmitra > ~/.local/share/kisanmitra
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "kisanmitra")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: kisanmitra-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve          Start the gateway server")
		fmt.Println("  init           Write a starter config with a fresh JWT secret")
		fmt.Println("  health         Check gateway health")
		fmt.Println("  hash-password  Read a password from stdin and print its bcrypt digest")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(getConfigPath(), getDataPath())
	case "health":
		err = runHealth(ctx)
	case "hash-password":
		err = runHashPassword(os.Stdin, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	green := color.New(color.FgGreen)
	green.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Chat LLM:  %s", cfg.LLM.Provider)
	if cfg.LLM.Model != "" {
		gray.Printf(" (%s)", cfg.LLM.Model)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Cache:     %s", cfg.Cache.Driver)
	if cfg.Cache.Driver == "redis" {
		yellow.Printf(" [%s]", cfg.Cache.RedisAddr)
	}
	fmt.Println()
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	fmt.Println()

	logger.Info("starting kisanmitra-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Create and run gateway
	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runHashPassword reads one line from in and writes its bcrypt digest to out.
func runHashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password is empty")
	}

	digest, err := auth.NewHasher(0).Hash(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, digest)
	return err
}
