package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"mercator-hq/helios/pkg/config"
)

// Redacted replaces sensitive attribute values.
const Redacted = "***"

var (
	// level is shared by every handler built by Setup.
	level slog.LevelVar

	setupMu sync.Mutex
)

var (
	bearerPattern  = regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`)
	urlUserPattern = regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]+@`)
)

// Options control logger construction.
type Options struct {
	// Writer receives log output (defaults to os.Stderr).
	Writer io.Writer
}

// Setup builds a logger from cfg, installs it as slog.Default and returns it.
//
// The handler is JSON or text according to cfg.Format and writes to
// opts.Writer (stderr by default). Its level comes from a shared
// slog.LevelVar, so SetLevel later adjusts every logger derived from the
// result, including the component loggers created with
// slog.Default().With("component", ...). Attribute values under keys that
// look like secrets are replaced with Redacted.
//
// Setup is meant to run once at startup, before components are built:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, logging.Options{})
//	if err != nil {
//		return err
//	}
//	logger.Info("starting helios")
func Setup(cfg config.LoggingConfig, opts Options) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	setupMu.Lock()
	defer setupMu.Unlock()

	level.Set(lvl)
	handlerOpts := &slog.HandlerOptions{
		Level:       &level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: newRedactor(cfg.RedactKeys).replaceAttr,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	case "json", "":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// SetLevel changes the minimum level of every logger built by Setup.
// It is safe to call concurrently with logging and is how a configuration
// reload changes the level without rebuilding loggers. An unknown level is
// rejected and the current level is kept.
func SetLevel(levelStr string) error {
	lvl, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

type redactor struct {
	keys []string
}

func newRedactor(keys []string) *redactor {
	if len(keys) == 0 {
		keys = config.DefaultRedactKeys
	}
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &redactor{keys: lowered}
}

func (r *redactor) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

func (r *redactor) replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if r.sensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		scrubbed := bearerPattern.ReplaceAllString(s, "Bearer "+Redacted)
		scrubbed = urlUserPattern.ReplaceAllString(scrubbed, "${1}"+Redacted+"@")
		if scrubbed != s {
			return slog.String(a.Key, scrubbed)
		}
	}
	return a
}
