// ABOUTME: slog setup for the gateway binary
// ABOUTME: JSON output for machines, a colorized line format for terminals, secrets redacted in both

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/kisanmitra/kisanmitra-gateway/internal/config"
)

// redactedKeys never reach the log in clear text, whatever handler is used.
var redactedKeys = map[string]bool{
	"password":       true,
	"password_hash":  true,
	"aadhaar_number": true,
	"authorization":  true,
	"access_token":   true,
	"api_key":        true,
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	return slog.New(newLogHandler(cfg, os.Stdout))
}

func newLogHandler(cfg config.LoggingConfig, out io.Writer) slog.Handler {
	level := slog.LevelInfo
	if cfg.Level != "" {
		// Unknown names keep the info default.
		_ = level.UnmarshalText([]byte(cfg.Level))
	}

	if cfg.Format == "json" {
		return slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				return redact(a)
			},
		})
	}
	return &colorHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func redact(a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// colorHandler writes one line per record:
//
//	15:04:05 INF [auth] message key=value ...
//
// The component attribute becomes the bracketed tag. Derived handlers share
// the parent's mutex and writer.
type colorHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Level
	component string
	attrs     []slog.Attr
	prefix    string
}

var levelTags = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG"),
	slog.LevelInfo:  color.CyanString("INF"),
	slog.LevelWarn:  color.YellowString("WRN"),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR"),
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	if tag, ok := levelTags[r.Level]; ok {
		b.WriteString(tag)
	} else {
		b.WriteString(r.Level.String())
	}
	b.WriteByte(' ')
	if h.component != "" {
		b.WriteString(color.BlueString("[" + h.component + "] "))
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a = redact(a)
	value := a.Value.Resolve().String()
	if a.Key == "error" {
		value = color.RedString(value)
	}
	b.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	b.WriteString(value)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(next.attrs, h.attrs)
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			next.component = a.Value.String()
			continue
		}
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
