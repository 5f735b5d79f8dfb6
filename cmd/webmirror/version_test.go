package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestGetVersion tests version retrieval.
func TestGetVersion(t *testing.T) {
	t.Parallel()

	if got := getVersion(); got == "" {
		t.Error("expected non-empty version")
	}
}

// TestGetCommit tests commit hash retrieval.
func TestGetCommit(t *testing.T) {
	t.Parallel()

	if got := getCommit(); got == "" {
		t.Error("expected non-empty commit")
	}
}

// TestGetDate tests build date retrieval.
func TestGetDate(t *testing.T) {
	t.Parallel()

	if got := getDate(); got == "" {
		t.Error("expected non-empty date")
	}
}

// TestNewVersionCmd tests the version command.
func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	if cmd.Use != "version" {
		t.Errorf("expected use 'version', got %q", cmd.Use)
	}

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	out := buf.String()
	if !strings.Contains(out, "webmirror version") {
		t.Errorf("expected version line in output, got %q", out)
	}
	if !strings.Contains(out, "commit:") {
		t.Errorf("expected commit line in output, got %q", out)
	}
}
