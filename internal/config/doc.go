// Package config handles configuration loading for kisanmitra-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from KISANMITRA_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/kisanmitra/gateway.yaml
//  3. ~/.config/kisanmitra/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${KISANMITRA_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "30m"
//	server:
//	  shutdown_timeout: "10s"
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
//	database:
//	  path: "./data/kisanmitra.db"
//	  chat_path: "./data/chat_history.db"
//
//	auth:
//	  jwt_secret: "${KISANMITRA_JWT_SECRET}"
//	  algorithm: "HS256"
//	  token_ttl: "30m"
//
//	cache:
//	  driver: "redis"
//	  redis_addr: "localhost:6379"
//
//	llm:
//	  provider: "openai"
//	  model: "gpt-4o-mini"
//	  api_key: "${OPENAI_API_KEY}"
//	  temperature: 0
//	  summary_timeout: "60s"
//
//	gemini:
//	  api_key: "${GEMINI_API_KEY}"
//	  model: "gemini-2.5-flash"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text or json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	cors:
//	  allowed_origins: ["http://localhost:5173"]
package config
