// Package config loads SpaceNote's configuration the way linear-fuse does:
// defaults, then an optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const defaultMaxUploadSize = 500 * 1024 * 1024 // 500 MiB

// Config holds every option recognized by spec.md §6.
type Config struct {
	DatabaseURL      string     `yaml:"database_url"`
	SiteURL          string     `yaml:"site_url"`
	Host             string     `yaml:"host"`
	Port             int        `yaml:"port"`
	Debug            bool       `yaml:"debug"`
	CORSOrigins      []string   `yaml:"cors_origins"`
	AttachmentsPath  string     `yaml:"attachments_path"`
	ImagesPath       string     `yaml:"images_path"`
	TelegramBotToken string     `yaml:"telegram_bot_token"`
	MaxUploadSize    UploadSize `yaml:"max_upload_size"`
	LogLevel         string     `yaml:"log_level"`
}

// UploadSize unmarshals either a plain byte count or a humanized string
// ("500MiB") as spec.md's max_upload_size allows.
type UploadSize int64

func (u *UploadSize) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		if n, err := humanize.ParseBytes(raw); err == nil {
			*u = UploadSize(n)
			return nil
		}
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			*u = UploadSize(i)
			return nil
		}
		return fmt.Errorf("invalid max_upload_size %q", raw)
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*u = UploadSize(n)
	return nil
}

func (u UploadSize) Bytes() int64 { return int64(u) }

func DefaultConfig() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          8080,
		LogLevel:      "info",
		MaxUploadSize: UploadSize(defaultMaxUploadSize),
	}
}

// Load loads configuration using the real environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv loads configuration using a provided environment lookup
// function so tests can supply isolated environment values.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPathWithEnv(getenv)
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	overrideString(&cfg.DatabaseURL, getenv("SPACENOTE_DATABASE_URL"))
	overrideString(&cfg.SiteURL, getenv("SPACENOTE_SITE_URL"))
	overrideString(&cfg.Host, getenv("SPACENOTE_HOST"))
	overrideString(&cfg.AttachmentsPath, getenv("SPACENOTE_ATTACHMENTS_PATH"))
	overrideString(&cfg.ImagesPath, getenv("SPACENOTE_IMAGES_PATH"))
	overrideString(&cfg.TelegramBotToken, getenv("SPACENOTE_TELEGRAM_BOT_TOKEN"))

	if portStr := getenv("SPACENOTE_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = p
		}
	}
	if debugStr := getenv("SPACENOTE_DEBUG"); debugStr != "" {
		cfg.Debug = debugStr == "1" || strings.EqualFold(debugStr, "true")
	}
	if origins := getenv("SPACENOTE_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}

	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = UploadSize(defaultMaxUploadSize)
	}
	return cfg, nil
}

func overrideString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "spacenote", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "spacenote", "config.yaml")
}

// GetConfigPath returns the default config file path using the real
// environment.
func GetConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}
