package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// withCategories enables the given categories for one test.
func withCategories(t *testing.T, s string) {
	t.Helper()
	orig := categories.Load()
	t.Cleanup(func() { categories.Store(orig) })
	setCategories(s)
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "router", map[string]bool{"router": true}},
		{"multiple", "router,envelope", map[string]bool{"router": true, "envelope": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " router , envelope ", map[string]bool{"router": true, "envelope": true}},
		{"uppercase normalized", "ROUTER,Envelope", map[string]bool{"router": true, "envelope": true}},
		{"empty segments", "router,,envelope", map[string]bool{"router": true, "envelope": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	withCategories(t, "router,envelope")

	if !Enabled(Router) || !Enabled(Envelope) {
		t.Error("router and envelope should be enabled")
	}
	if Enabled(WebSocket) {
		t.Error("websocket should not be enabled")
	}
	if Enabled("all") {
		t.Error("all should not be enabled (not in categories)")
	}
}

func TestEnabled_All(t *testing.T) {
	withCategories(t, "all")

	for _, c := range []string{Router, Dispatch, "anything"} {
		if !Enabled(c) {
			t.Errorf("%s should be enabled via 'all'", c)
		}
	}
}

func TestInitPrefersEnvironment(t *testing.T) {
	withCategories(t, "")
	t.Setenv("DUPLEX_DEBUG", "auth")
	t.Setenv("DUPLEX_LOG_LEVEL", "trace")

	if level := Init("router", "warn"); level != LevelTrace {
		t.Errorf("level = %v, want TRACE", level)
	}
	if !Enabled(Auth) || Enabled(Router) {
		t.Error("environment categories should replace the configured ones")
	}

	t.Setenv("DUPLEX_DEBUG", "")
	t.Setenv("DUPLEX_LOG_LEVEL", "")
	if level := Init("router", "warn"); level != slog.LevelWarn {
		t.Errorf("level = %v, want WARN", level)
	}
	if !Enabled(Router) {
		t.Error("configured category not applied")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	defer slog.SetDefault(orig)
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})))

	withCategories(t, "")
	Frame(WebSocket, "in", []byte(`{"id":"1"}`), true)
	if buf.Len() != 0 {
		t.Fatalf("disabled category logged: %s", buf.String())
	}

	setCategories(WebSocket)
	Frame(WebSocket, "in", []byte(`{"id":"1"}`), true)
	Frame(WebSocket, "out", []byte{0xa1, 0x02}, false)
	out := buf.String()
	if !strings.Contains(out, `direction=in`) || !strings.Contains(out, `{\"id\":\"1\"}`) {
		t.Errorf("text frame not dumped: %s", out)
	}
	if !strings.Contains(out, "payload=a102") {
		t.Errorf("binary frame not hex encoded: %s", out)
	}

	buf.Reset()
	Frame(WebSocket, "in", bytes.Repeat([]byte("x"), 2*maxFrameDump), true)
	if !strings.Contains(buf.String(), "bytes=1024") || strings.Count(buf.String(), "x") > maxFrameDump+1 {
		t.Errorf("large frame not cut: %d bytes logged", buf.Len())
	}
}

func TestLog_DisabledCategory(t *testing.T) {
	withCategories(t, "")

	// Must not panic or produce output.
	Log(Router, "test message", "key", "value")
}

func TestExposeErrorsDefaultsOff(t *testing.T) {
	if ExposeErrors() {
		t.Fatal("error exposure must default to off")
	}
	SetExposeErrors(true)
	defer SetExposeErrors(false)
	if !ExposeErrors() {
		t.Error("SetExposeErrors(true) had no effect")
	}
}
