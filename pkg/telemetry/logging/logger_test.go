package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"mercator-hq/quota/pkg/limits"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(string) bool
	}{
		{"json", func(s string) bool { return strings.HasPrefix(s, "{") }},
		{"text", func(s string) bool { return strings.Contains(s, "time=") && strings.Contains(s, "msg=hello") }},
		{"console", func(s string) bool { return !strings.Contains(s, "time=") && strings.Contains(s, "msg=hello") }},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Config{Level: "info", Format: tt.format, Writer: &buf})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			logger.Info("hello")
			if !tt.check(buf.String()) {
				t.Errorf("Unexpected %s output: %q", tt.format, buf.String())
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Level: "warn", Format: "json", Writer: &buf})
	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("Expected info message to be filtered")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("Expected warn message to be written")
	}
}

func TestNew_RedactsIdentities(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Format: "json", RedactIdentities: true, Writer: &buf})
	logger.Info("upgrade", IdentityKey, "alice@example.com")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if entry[IdentityKey] != "a***" {
		t.Errorf("Expected masked identity, got %v", entry[IdentityKey])
	}
}

func TestRedactIdentity(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"x":       "x***",
		"bob":     "b***",
		"élodie":  "é***",
		"user-42": "u***",
	}
	for in, want := range tests {
		if got := RedactIdentity(in); got != want {
			t.Errorf("RedactIdentity(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestObserver_ThrottlesOverRelease(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := NewObserver(logger, time.Hour)

	for i := 0; i < 5; i++ {
		obs.ObserveOverRelease("global", 10, 5)
	}
	if n := strings.Count(buf.String(), "released more than it held"); n != 1 {
		t.Errorf("Expected 1 warning, got %d", n)
	}
}

func TestObserver_UnthrottledWithoutInterval(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(slog.New(slog.NewTextHandler(&buf, nil)), 0)

	for i := 0; i < 3; i++ {
		obs.ObserveOverRelease("global", 10, 5)
	}
	if n := strings.Count(buf.String(), "released more than it held"); n != 3 {
		t.Errorf("Expected 3 warnings, got %d", n)
	}
}

func TestObserver_LogsRejectionsAndIdentities(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewObserver(logger, 0)

	repo := limits.NewRepository(limits.WithObserver(obs))
	repo.ConfigureGlobal(10, "global")
	repo.ConfigureSession(10)
	repo.ConfigureIdentityQuota(10)

	c := repo.MakeLimiter("query", "session")
	if err := repo.UpgradeWith("alice", c); err != nil {
		t.Fatalf("UpgradeWith failed: %v", err)
	}
	_ = c.Acquire(11)
	_ = c.Close()

	out := buf.String()
	for _, want := range []string{
		"identity budget created",
		"acquisition rejected",
		"composite=query",
		"identity budget reclaimed",
		fmt.Sprintf("%s=alice", IdentityKey),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in log output:\n%s", want, out)
		}
	}
}

func TestObserver_RedactsIdentityBudgetNames(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "json", RedactIdentities: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	obs := NewObserver(logger, 0)

	repo := limits.NewRepository(limits.WithObserver(obs))
	repo.ConfigureGlobal(1000, "global")
	repo.ConfigureSession(1000)
	repo.ConfigureIdentityQuota(10)

	c := repo.MakeLimiter("c", "session")
	if err := repo.UpgradeWith("alice@example.com", c); err != nil {
		t.Fatalf("UpgradeWith failed: %v", err)
	}
	if err := c.Acquire(50); err == nil {
		t.Fatal("Expected identity budget to reject")
	}
	if err := c.Acquire(5); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	_ = c.Release(500)
	_ = c.Close()

	out := buf.String()
	if strings.Contains(out, "alice") {
		t.Errorf("Expected identity to be redacted everywhere, got:\n%s", out)
	}

	var rejected, overReleased bool
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", line, err)
		}
		switch entry["msg"] {
		case "acquisition rejected":
			rejected = true
			if entry[IdentityKey] != "a***" || entry["scope"] != "identity" {
				t.Errorf("Expected redacted identity scope on rejection, got %v", entry)
			}
			if _, ok := entry["error"]; ok {
				t.Errorf("Expected no raw error on rejection, got %v", entry["error"])
			}
		case "budget released more than it held":
			if entry[IdentityKey] == "a***" {
				overReleased = true
			}
		}
	}
	if !rejected {
		t.Error("Expected a rejection line")
	}
	if !overReleased {
		t.Error("Expected an over-release line for the identity budget")
	}
}

func TestObserver_CustomIdentityPrefix(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(slog.New(slog.NewTextHandler(&buf, nil)), 0, WithIdentityPrefix("suid_"))

	obs.ObserveOverRelease("suid_bob", 10, 5)
	obs.ObserveOverRelease("global", 10, 5)

	out := buf.String()
	if !strings.Contains(out, IdentityKey+"=bob") {
		t.Errorf("Expected identity attribute for prefixed budget, got:\n%s", out)
	}
	if !strings.Contains(out, "limiter=global") {
		t.Errorf("Expected limiter attribute for global budget, got:\n%s", out)
	}
	if strings.Contains(out, "suid_bob") {
		t.Errorf("Expected prefixed name to stay out of the log, got:\n%s", out)
	}
}
