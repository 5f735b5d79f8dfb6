package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSecureHandlerMasksSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"cookie header", "cookie", "session=abc123"},
		{"authorization header", "authorization", "Bearer xyz"},
		{"mixed case key", "Authorization", "Basic dXNlcjpwYXNz"},
		{"api key", "api_key", "sk-12345"},
		{"keyword substring", "proxy_password", "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))
			logger.Info("request", tt.key, tt.val)

			out := buf.String()
			if strings.Contains(out, tt.val) {
				t.Errorf("sensitive value %q leaked into log output: %s", tt.val, out)
			}
			if !strings.Contains(out, MaskValue) {
				t.Errorf("expected mask value in output: %s", out)
			}
		})
	}
}

func TestSecureHandlerMasksSensitiveValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))

	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.signature"
	logger.Info("fetch", "header_value", jwt)

	if strings.Contains(buf.String(), jwt) {
		t.Errorf("JWT leaked into log output: %s", buf.String())
	}
}

func TestSecureHandlerPassesThroughNormalAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))
	logger.Info("fetched page", "url", "http://example.com/", "status", 200)

	out := buf.String()
	if !strings.Contains(out, "http://example.com/") {
		t.Errorf("normal attribute was masked: %s", out)
	}
	if strings.Contains(out, MaskValue) {
		t.Errorf("unexpected masking: %s", out)
	}
}

func TestSecureHandlerSanitizesGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))
	logger.Info("request",
		slog.Group("headers",
			slog.String("cookie", "sid=secretvalue"),
			slog.String("accept", "text/html"),
		),
	)

	out := buf.String()
	if strings.Contains(out, "secretvalue") {
		t.Errorf("group attribute leaked: %s", out)
	}
	if !strings.Contains(out, "text/html") {
		t.Errorf("non-sensitive group attribute was masked: %s", out)
	}
}

func TestSecureHandlerWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))
	logger := base.With("token", "tok_12345")
	logger.Info("with attrs")

	if strings.Contains(buf.String(), "tok_12345") {
		t.Errorf("With() attribute leaked: %s", buf.String())
	}
}

func TestNewSecureLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	quiet := NewSecureLogger(&buf, false)
	quiet.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed at warn level: %s", buf.String())
	}

	verbose := NewSecureLogger(&buf, true)
	verbose.Debug("should appear")
	if buf.Len() == 0 {
		t.Error("debug should appear in verbose mode")
	}
}
