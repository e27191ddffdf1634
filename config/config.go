package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything the CLI needs to talk to a BioWeaver
// backend and run a recording session.
type Config struct {
	APIBase       string
	AdminToken    string
	UserID        string
	PollInterval  time.Duration
	MaxRecordSecs int
	Formats       []string
}

const (
	defaultConfigPath = "~/.config/bioweaver/config.toml"
	defaultAPIBase    = "http://127.0.0.1:18888"
	defaultUserID     = "1"
	defaultPollSecs   = 3
	defaultMaxRecord  = 1200
)

var defaultFormats = []string{"flac", "wav"}

// Load locates and parses the config file, falling back to defaults
// when it is missing. BIOWEAVER_API_BASE and BIOWEAVER_ADMIN_TOKEN
// override the file.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyEnv(cfg), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIBase       string   `toml:"api_base"`
		AdminToken    string   `toml:"admin_token"`
		UserID        string   `toml:"user_id"`
		PollSeconds   int      `toml:"poll_interval_seconds"`
		MaxRecordSecs int      `toml:"max_record_seconds"`
		Formats       []string `toml:"formats"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIBase); v != "" {
		cfg.APIBase = v
	}
	if v := strings.TrimSpace(raw.AdminToken); v != "" {
		cfg.AdminToken = v
	}
	if v := strings.TrimSpace(raw.UserID); v != "" {
		cfg.UserID = v
	}
	if raw.PollSeconds > 0 {
		cfg.PollInterval = time.Duration(raw.PollSeconds) * time.Second
	}
	if raw.MaxRecordSecs > 0 {
		cfg.MaxRecordSecs = raw.MaxRecordSecs
	}
	if len(raw.Formats) > 0 {
		cfg.Formats = raw.Formats
	}

	return applyEnv(cfg), nil
}

func defaults() Config {
	return Config{
		APIBase:       defaultAPIBase,
		UserID:        defaultUserID,
		PollInterval:  defaultPollSecs * time.Second,
		MaxRecordSecs: defaultMaxRecord,
		Formats:       append([]string(nil), defaultFormats...),
	}
}

func applyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("BIOWEAVER_API_BASE")); v != "" {
		cfg.APIBase = v
	}
	if v := strings.TrimSpace(os.Getenv("BIOWEAVER_ADMIN_TOKEN")); v != "" {
		cfg.AdminToken = v
	}
	return cfg
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
