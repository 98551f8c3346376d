package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/chat"
	"github.com/MegaGrindStone/sqlchat-web-ui/internal/services"
	"gopkg.in/yaml.v3"
)

type config struct {
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"logLevel"`
	LogFormat      string        `yaml:"logFormat"`
	SessionTTL     time.Duration `yaml:"sessionTTL"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	Backend        backendConfig `yaml:"backend"`
	Chat           chatConfig    `yaml:"chat"`
}

type backendConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	Timeout      time.Duration `yaml:"timeout"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

type chatConfig struct {
	DefaultModel    string        `yaml:"defaultModel"`
	MaxInputLength  int           `yaml:"maxInputLength"`
	PreRequestDelay time.Duration `yaml:"preRequestDelay"`
	QuickQuestions  []string      `yaml:"quickQuestions"`
}

const (
	configEnvKey   = "SQLCHAT_CONFIG"
	portEnvKey     = "SQLCHAT_PORT"
	backendEnvKey  = "SQLCHAT_BACKEND_URL"
	logLevelEnvKey = "SQLCHAT_LOG_LEVEL"
)

func defaultConfig() config {
	cc := chat.DefaultConfig()
	return config{
		Port:       "8080",
		LogLevel:   "info",
		LogFormat:  "text",
		SessionTTL: services.DefaultSessionTTL,
		Backend: backendConfig{
			BaseURL:      services.DefaultBaseURL,
			Timeout:      services.DefaultTimeout,
			QueryTimeout: cc.QueryTimeout,
		},
		Chat: chatConfig{
			DefaultModel:    cc.DefaultModel,
			MaxInputLength:  cc.MaxInputLength,
			PreRequestDelay: cc.PreRequestDelay,
			QuickQuestions:  slices.Clone(cc.QuickQuestions),
		},
	}
}

// configPath returns the path of the config file, either from the environment or inside the user's
// config directory.
func configPath() (string, error) {
	if p := os.Getenv(configEnvKey); p != "" {
		return p, nil
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "sqlchatui", "config.yaml"), nil
}

// loadConfig reads the config file at path. A missing file yields the defaults. Environment variables
// override the file.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		cfg, err = decodeConfig(f)
		if err != nil {
			return config{}, err
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// decodeConfig decodes a YAML config on top of the defaults, so omitted keys keep their default
// values and explicit zero values are kept.
func decodeConfig(r io.Reader) (config, error) {
	cfg := defaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) applyEnv(getenv func(string) string) {
	if v := getenv(portEnvKey); v != "" {
		c.Port = v
	}
	if v := getenv(backendEnvKey); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv(logLevelEnvKey); v != "" {
		c.LogLevel = v
	}
}

func (c config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid backend baseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend baseURL must be http or https, got %q", c.Backend.BaseURL)
	}

	if c.Backend.Timeout <= 0 || c.Backend.QueryTimeout <= 0 {
		return fmt.Errorf("backend timeouts must be positive")
	}
	if c.Chat.PreRequestDelay < 0 {
		return fmt.Errorf("preRequestDelay must not be negative")
	}
	if c.Chat.MaxInputLength <= 0 {
		return fmt.Errorf("maxInputLength must be positive")
	}
	if len(c.Chat.QuickQuestions) == 0 {
		return fmt.Errorf("at least one quick question is required")
	}

	if _, err := c.level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.LogFormat)
	}

	return nil
}

func (c config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func (c config) newLogger(w io.Writer) *slog.Logger {
	// validate already rejected unknown levels
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c config) chatConfig() chat.Config {
	return chat.Config{
		BackendURL:      c.Backend.BaseURL,
		DefaultModel:    c.Chat.DefaultModel,
		MaxInputLength:  c.Chat.MaxInputLength,
		PreRequestDelay: c.Chat.PreRequestDelay,
		QueryTimeout:    c.Backend.QueryTimeout,
		QuickQuestions:  c.Chat.QuickQuestions,
	}
}
