// Package debug holds the process-wide diagnostic switches of duplex.
//
// Debug output is grouped by subsystem. DUPLEX_DEBUG (or debug.categories
// in the config file) names the subsystems to trace, comma separated, or
// "all":
//
//	DUPLEX_DEBUG=router,websocket
//
// Category output is emitted at slog debug level, so the handler level must
// be DEBUG or TRACE for it to show. Frame dumps from the WebSocket transport
// additionally need TRACE.
//
// The package also owns the error exposure flag that decides whether error
// responses may carry internal detail.
package debug

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Subsystems that emit category output.
const (
	Envelope  = "envelope"
	Router    = "router"
	Dispatch  = "dispatch"
	Transport = "transport"
	WebSocket = "websocket"
	Auth      = "auth"
	Config    = "config"
)

// LevelTrace sits below slog.LevelDebug and enables frame dumps.
const LevelTrace = slog.LevelDebug - 4

// maxFrameDump bounds the bytes of a single frame written to the log.
const maxFrameDump = 512

// categories is replaced wholesale by Init and read without locking.
var categories atomic.Pointer[map[string]bool]

func init() {
	setCategories(os.Getenv("DUPLEX_DEBUG"))
}

// Init applies the configured categories and level. DUPLEX_DEBUG and
// DUPLEX_LOG_LEVEL take precedence over the config values. It returns the
// level the process logger should use.
func Init(configCategories, configLevel string) slog.Level {
	cats := os.Getenv("DUPLEX_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	setCategories(cats)

	level := os.Getenv("DUPLEX_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}
	return ParseLevel(level)
}

var exposeErrors atomic.Bool

// SetExposeErrors turns the rendering of error detail on or off.
func SetExposeErrors(on bool) {
	exposeErrors.Store(on)
}

// ExposeErrors reports whether error responses may carry debug detail.
// It defaults to off.
func ExposeErrors() bool {
	return exposeErrors.Load()
}

// Enabled reports whether output for the subsystem is switched on.
func Enabled(category string) bool {
	m := *categories.Load()
	return m["all"] || m[category]
}

// Log emits a debug record tagged with the subsystem when it is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Frame dumps a raw transport frame at trace level. Text frames are logged
// as text and binary frames as hex, cut to a bounded length.
func Frame(category, direction string, data []byte, text bool) {
	if !Enabled(category) || !slog.Default().Enabled(context.Background(), LevelTrace) {
		return
	}
	shown := data
	if len(shown) > maxFrameDump {
		shown = shown[:maxFrameDump]
	}
	payload := hex.EncodeToString(shown)
	if text {
		payload = string(shown)
	}
	slog.Log(context.Background(), LevelTrace, "frame",
		"debug", category, "direction", direction, "bytes", len(data), "payload", payload)
}

// ParseLevel converts a level name to a slog.Level. Unknown names yield INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func setCategories(s string) {
	m := parseCategories(s)
	categories.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		if cat = strings.TrimSpace(strings.ToLower(cat)); cat != "" {
			m[cat] = true
		}
	}
	return m
}
