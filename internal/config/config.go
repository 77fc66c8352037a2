package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultRefreshDebounceMS = 500
	defaultSiteTitle         = "Laravel News Podcast"
	defaultSiteDescription   = "Jake and Michael discuss all the latest Laravel releases, tutorials, and happenings in the community."
	defaultSiteLanguage      = "en"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	addr := strings.TrimSpace(os.Getenv("PODCAST_LISTEN_ADDR"))
	if addr == "" {
		return defaultListenAddr
	}
	return addr
}

// ValidateListenAddr ensures the address is host:port with a usable port.
func ValidateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// RefreshDebounce returns how long to wait after a template file changes
// before the templates are parsed again.
func RefreshDebounce() time.Duration {
	value := strings.TrimSpace(os.Getenv("PODCAST_REFRESH_DEBOUNCE_MS"))
	if value == "" {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}

	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// ResolveTemplateDir returns the absolute template directory used for live
// reloading. The second return value is false when templates should come from
// the binary.
func ResolveTemplateDir() (string, bool, error) {
	dir := strings.TrimSpace(os.Getenv("PODCAST_TEMPLATE_DIR"))
	if dir == "" {
		return "", false, nil
	}

	abs, err := expandPath(dir)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", false, err
	}
	if !info.IsDir() {
		return "", false, fmt.Errorf("template path %s is not a directory", abs)
	}
	return abs, true, nil
}

// Logging holds the logger settings.
type Logging struct {
	Level  string
	Format string
}

// ResolveLogging reads PODCAST_LOG_LEVEL and PODCAST_LOG_FORMAT.
func ResolveLogging() Logging {
	cfg := Logging{Level: defaultLogLevel, Format: defaultLogFormat}
	if value := strings.TrimSpace(os.Getenv("PODCAST_LOG_LEVEL")); value != "" {
		cfg.Level = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv("PODCAST_LOG_FORMAT")); value != "" {
		cfg.Format = strings.ToLower(value)
	}
	return cfg
}

// SiteMetadata describes the show as presented on pages and in the feed.
type SiteMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

type siteMetadataYAML struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
	Author      string `yaml:"author"`
}

// ResolveSiteMetadata returns the site metadata after applying defaults,
// YAML configuration (when enabled), and environment variable overrides.
func ResolveSiteMetadata() (SiteMetadata, error) {
	meta := SiteMetadata{
		Title:       defaultSiteTitle,
		Description: defaultSiteDescription,
		Language:    defaultSiteLanguage,
	}

	configPath := strings.TrimSpace(os.Getenv("PODCAST_SITE_CONFIG"))
	if configPath != "" {
		resolved, err := expandPath(configPath)
		if err != nil {
			return SiteMetadata{}, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return SiteMetadata{}, err
		}
		var yamlConfig siteMetadataYAML
		if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
			return SiteMetadata{}, fmt.Errorf("parse %s: %w", resolved, err)
		}
		overlay(&meta.Title, yamlConfig.Title)
		overlay(&meta.Description, yamlConfig.Description)
		overlay(&meta.Language, yamlConfig.Language)
		overlay(&meta.Author, yamlConfig.Author)
	}

	overlay(&meta.Title, os.Getenv("PODCAST_SITE_TITLE"))
	overlay(&meta.Description, os.Getenv("PODCAST_SITE_DESCRIPTION"))
	overlay(&meta.Language, os.Getenv("PODCAST_SITE_LANGUAGE"))
	overlay(&meta.Author, os.Getenv("PODCAST_SITE_AUTHOR"))

	return meta, nil
}

func overlay(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}
