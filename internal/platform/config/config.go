package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the resolved server configuration.
type Config struct {
	Port               string        `toml:"port"`
	LogLevel           string        `toml:"log_level"`
	LogFormat          string        `toml:"log_format"`
	UpstreamAPIBase    string        `toml:"upstream_api_base"`
	UpstreamTimeout    time.Duration `toml:"-"`
	UpstreamTimeoutRaw string        `toml:"upstream_timeout"`
	PublicBaseURL      string        `toml:"public_base_url"`
	ProxyPathPrefix    string        `toml:"proxy_path_prefix"`
	StreamHostSuffixes []string      `toml:"stream_host_suffixes"`
	UserAgent          string        `toml:"user_agent"`
	Referer            string        `toml:"referer"`
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		LogFormat:       "json",
		UpstreamAPIBase: "https://api.bilibili.com",
		UpstreamTimeout: 5 * time.Second,
		ProxyPathPrefix: "/api/proxy",
		StreamHostSuffixes: []string{
			"bilivideo.com",
			"bilivideo.cn",
			"akamaized.net",
			"hdslb.com",
		},
		Referer: "https://www.bilibili.com",
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from defaults, then the TOML file named by
// CONFIG_FILE (if any), then individual environment variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := GetEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.ReadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.UpstreamAPIBase = GetEnv("UPSTREAM_API_BASE", cfg.UpstreamAPIBase)
	cfg.UpstreamTimeout = GetEnvDuration("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.PublicBaseURL = GetEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.ProxyPathPrefix = GetEnv("PROXY_PATH_PREFIX", cfg.ProxyPathPrefix)
	cfg.StreamHostSuffixes = GetEnvList("STREAM_HOST_SUFFIXES", cfg.StreamHostSuffixes)
	cfg.UserAgent = GetEnv("USER_AGENT", cfg.UserAgent)
	cfg.Referer = GetEnv("REFERER", cfg.Referer)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadFile overlays the TOML file at path onto c. A missing file is not an error.
func (c *Config) ReadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if c.UpstreamTimeoutRaw != "" {
		d, err := time.ParseDuration(c.UpstreamTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parse config: upstream_timeout: %w", err)
		}
		c.UpstreamTimeout = d
	}
	return nil
}

// Validate normalizes c and rejects values the server cannot run with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}
	c.UpstreamAPIBase = strings.TrimRight(strings.TrimSpace(c.UpstreamAPIBase), "/")
	if c.UpstreamAPIBase == "" {
		return errors.New("upstream api base is required")
	}
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	c.ProxyPathPrefix = "/" + strings.Trim(strings.TrimSpace(c.ProxyPathPrefix), "/")
	return nil
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvDuration parses a Go duration ("5s", "1500ms"). A bare integer is
// taken as seconds. Invalid values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

// GetEnvList splits a comma-separated variable, dropping blank items.
func GetEnvList(key string, fallback []string) []string {
	s := os.Getenv(key)
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
