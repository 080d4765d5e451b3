// ABOUTME: Gateway orchestrator that composes stores, models and the HTTP server
// ABOUTME: Manages the listener, route table, health endpoints and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/yuin/goldmark"

	"github.com/kisanmitra/kisanmitra-gateway/internal/advisor"
	"github.com/kisanmitra/kisanmitra-gateway/internal/assistant"
	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
	"github.com/kisanmitra/kisanmitra-gateway/internal/cache"
	"github.com/kisanmitra/kisanmitra-gateway/internal/config"
	"github.com/kisanmitra/kisanmitra-gateway/internal/llm"
	"github.com/kisanmitra/kisanmitra-gateway/internal/metrics"
	"github.com/kisanmitra/kisanmitra-gateway/internal/predict"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// ChatLog is the chat history store behind the assistant and the history endpoints.
type ChatLog interface {
	assistant.MemoryStore
	Sessions(ctx context.Context, userID string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Components are the collaborators a Gateway is assembled from.
type Components struct {
	Store     store.Store
	Chat      ChatLog
	Cache     cache.Cache
	Hasher    *auth.Hasher
	Tokens    *auth.TokenService
	ChatModel llm.ChatModel
	Enricher  llm.JSONGenerator
	Crop      *predict.CropClassifier
	Yield     *predict.YieldRegressor
	Metrics   *metrics.Metrics // nil disables instrumentation
}

// Gateway serves the KisanMitra HTTP API.
type Gateway struct {
	config     *config.Config
	store      store.Store
	chat       ChatLog
	cache      cache.Cache
	hasher     *auth.Hasher
	tokens     *auth.TokenService
	gate       *auth.Gate
	assistant  *assistant.Gateway
	advisor    *advisor.Client
	crop       *predict.CropClassifier
	yield      *predict.YieldRegressor
	metrics    *metrics.Metrics
	markdown   goldmark.Markdown
	httpServer *http.Server
	logger     *slog.Logger

	now func() time.Time
}

// New builds every component from cfg and returns a ready Gateway.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithComponents(cfg, c, logger), nil
}

// NewWithComponents assembles a Gateway from already constructed parts.
func NewWithComponents(cfg *config.Config, c Components, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	var modelObs llm.Observer
	var turnRec assistant.Recorder
	var authRec auth.FailureRecorder
	if c.Metrics != nil {
		modelObs, turnRec, authRec = c.Metrics, c.Metrics, c.Metrics
	}

	chatModel := llm.Observe(c.ChatModel, modelObs)
	assistantOpts := []assistant.Option{assistant.WithSummaryTimeout(cfg.LLM.SummaryTimeout)}
	if turnRec != nil {
		assistantOpts = append(assistantOpts, assistant.WithRecorder(turnRec))
	}
	gateOpts := []auth.GateOption{}
	if authRec != nil {
		gateOpts = append(gateOpts, auth.WithFailureRecorder(authRec))
	}

	g := &Gateway{
		config:    cfg,
		store:     c.Store,
		chat:      c.Chat,
		cache:     c.Cache,
		hasher:    c.Hasher,
		tokens:    c.Tokens,
		gate:      auth.NewGate(c.Tokens, c.Store, logger, gateOpts...),
		assistant: assistant.New(c.Chat, chatModel, c.Cache, logger, assistantOpts...),
		advisor:   advisor.New(llm.ObserveJSON(c.Enricher, modelObs), logger),
		crop:      c.Crop,
		yield:     c.Yield,
		metrics:   c.Metrics,
		markdown:  goldmark.New(),
		logger:    logger.With("component", "gateway"),
		now:       time.Now,
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// buildComponents opens stores, connects the cache and creates model clients.
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (c Components, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	c.Store, err = store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return c, fmt.Errorf("opening store: %w", err)
	}
	closers = append(closers, c.Store.Close)

	chat, err := store.NewSQLiteChatStore(cfg.Database.ChatPath)
	if err != nil {
		return c, fmt.Errorf("opening chat store: %w", err)
	}
	c.Chat = chat
	closers = append(closers, chat.Close)

	c.Cache, err = initCache(ctx, cfg.Cache)
	if err != nil {
		return c, err
	}
	closers = append(closers, c.Cache.Close)

	c.Tokens, err = auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.Algorithm, auth.WithDefaultTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return c, fmt.Errorf("creating token service: %w", err)
	}
	c.Hasher = auth.NewHasher(cfg.Auth.BcryptCost)

	c.ChatModel, err = initChatModel(ctx, cfg)
	if err != nil {
		return c, err
	}

	c.Enricher, err = llm.NewGeminiModel(ctx, llm.GeminiOptions{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		return c, fmt.Errorf("creating enrichment client: %w", err)
	}

	c.Crop, err = predict.LoadCropClassifier(cfg.Models.CropPath)
	if err != nil {
		return c, err
	}
	c.Yield, err = predict.LoadYieldRegressor(cfg.Models.YieldPath)
	if err != nil {
		return c, err
	}

	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New(prometheus.DefaultRegisterer)
	}

	logger.Info("components ready",
		"cache", cfg.Cache.Driver,
		"llm_provider", c.ChatModel.Provider(),
		"metrics", cfg.Metrics.Enabled)
	return c, nil
}

func initCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	opts := []cache.Option{cache.WithTTL(cfg.TTL)}
	if cfg.KeyPrefix != "" {
		opts = append(opts, cache.WithKeyPrefix(cfg.KeyPrefix))
	}

	if cache.Driver(cfg.Driver) == cache.DriverRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		opts = append(opts, cache.WithRedisClient(client))
	}

	c, err := cache.New(cache.Driver(cfg.Driver), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s cache: %w", cfg.Driver, err)
	}
	return c, nil
}

func initChatModel(ctx context.Context, cfg *config.Config) (llm.ChatModel, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIModel(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Temperature), nil
	case "gemini":
		opts := llm.GeminiOptions{
			APIKey:      firstNonEmpty(cfg.LLM.APIKey, cfg.Gemini.APIKey),
			Model:       firstNonEmpty(cfg.LLM.Model, cfg.Gemini.Model),
			BaseURL:     firstNonEmpty(cfg.LLM.BaseURL, cfg.Gemini.BaseURL),
			Temperature: cfg.LLM.Temperature,
		}
		m, err := llm.NewGeminiModel(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("creating chat model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and closes the stores and cache.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "cache close", g.cache.Close())
	errs = appendCloseError(errs, "chat store close", g.chat.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady returns 200 OK when both databases answer a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "db", "main", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	if err := g.chat.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "db", "chat", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("chat database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
