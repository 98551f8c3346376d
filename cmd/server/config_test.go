package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/chat"
	"github.com/MegaGrindStone/sqlchat-web-ui/internal/services"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.Backend.BaseURL != services.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Backend.BaseURL, services.DefaultBaseURL)
	}
	if cfg.Backend.Timeout != 30*time.Second || cfg.Backend.QueryTimeout != 45*time.Second {
		t.Errorf("timeouts = %v/%v, want 30s/45s", cfg.Backend.Timeout, cfg.Backend.QueryTimeout)
	}
	if cfg.Chat.MaxInputLength != 500 || cfg.Chat.PreRequestDelay != 500*time.Millisecond {
		t.Errorf("chat = %+v", cfg.Chat)
	}

	cfg.Chat.QuickQuestions[0] = "changed"
	if chat.DefaultQuickQuestions[0] == "changed" {
		t.Error("defaultConfig() shares the default quick questions")
	}
}

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, cfg config)
		wantErr bool
	}{
		{
			name: "Empty",
			yaml: "",
			check: func(t *testing.T, cfg config) {
				if cfg.Port != "8080" {
					t.Errorf("Port = %q, want default", cfg.Port)
				}
			},
		},
		{
			name: "Partial",
			yaml: `
port: "9090"
backend:
  baseURL: http://api:8000
  queryTimeout: 1m
chat:
  preRequestDelay: 0s
  quickQuestions:
    - Who has the highest marks?
`,
			check: func(t *testing.T, cfg config) {
				if cfg.Port != "9090" {
					t.Errorf("Port = %q, want %q", cfg.Port, "9090")
				}
				if cfg.Backend.BaseURL != "http://api:8000" || cfg.Backend.QueryTimeout != time.Minute {
					t.Errorf("Backend = %+v", cfg.Backend)
				}
				if cfg.Backend.Timeout != services.DefaultTimeout {
					t.Errorf("Timeout = %v, want default", cfg.Backend.Timeout)
				}
				if cfg.Chat.PreRequestDelay != 0 {
					t.Errorf("PreRequestDelay = %v, want 0", cfg.Chat.PreRequestDelay)
				}
				if len(cfg.Chat.QuickQuestions) != 1 {
					t.Errorf("QuickQuestions = %v, want one", cfg.Chat.QuickQuestions)
				}
				if cfg.Chat.MaxInputLength != 500 {
					t.Errorf("MaxInputLength = %d, want default", cfg.Chat.MaxInputLength)
				}
			},
		},
		{
			name:    "Malformed",
			yaml:    "port: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := decodeConfig(strings.NewReader(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		portEnvKey:     "3000",
		backendEnvKey:  "https://sql.example.com",
		logLevelEnvKey: "debug",
	}
	cfg := defaultConfig()
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.Port != "3000" || cfg.Backend.BaseURL != "https://sql.example.com" || cfg.LogLevel != "debug" {
		t.Errorf("applyEnv() = %+v", cfg)
	}

	untouched := defaultConfig()
	untouched.applyEnv(func(string) string { return "" })
	if untouched.Port != "8080" {
		t.Errorf("applyEnv() without env changed Port to %q", untouched.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config)
	}{
		{name: "Empty port", modify: func(c *config) { c.Port = "" }},
		{name: "Bad scheme", modify: func(c *config) { c.Backend.BaseURL = "ftp://localhost" }},
		{name: "Zero timeout", modify: func(c *config) { c.Backend.Timeout = 0 }},
		{name: "Negative delay", modify: func(c *config) { c.Chat.PreRequestDelay = -time.Second }},
		{name: "Zero max length", modify: func(c *config) { c.Chat.MaxInputLength = 0 }},
		{name: "No quick questions", modify: func(c *config) { c.Chat.QuickQuestions = nil }},
		{name: "Unknown level", modify: func(c *config) { c.LogLevel = "verbose" }},
		{name: "Unknown format", modify: func(c *config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("validate() error = nil, want error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(portEnvKey, "")
	t.Setenv(backendEnvKey, "")
	t.Setenv(logLevelEnvKey, "")

	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig() missing file error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("loadConfig() missing file Port = %q, want default", cfg.Port)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logLevel: warn\nlogFormat: json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(portEnvKey, "7070")

	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Port != "7070" || cfg.LogFormat != "json" {
		t.Errorf("loadConfig() = %+v", cfg)
	}
	if l, _ := cfg.level(); l != slog.LevelWarn {
		t.Errorf("level() = %v, want %v", l, slog.LevelWarn)
	}

	if err := os.WriteFile(path, []byte("backend:\n  baseURL: localhost:8000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Error("loadConfig() with invalid baseURL error = nil, want error")
	}
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	cfg := defaultConfig()
	cfg.LogFormat = "json"

	cfg.newLogger(&sb).Info("hello")
	if !strings.HasPrefix(sb.String(), "{") {
		t.Errorf("newLogger() json output = %q", sb.String())
	}
}
