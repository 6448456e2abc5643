package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("PROXY_PATH_PREFIX", "")
	t.Setenv("UPSTREAM_TIMEOUT", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.ProxyPathPrefix != "/api/proxy" || cfg.UpstreamTimeout != 5*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.UpstreamAPIBase != "https://api.bilibili.com" {
		t.Errorf("api base = %s", cfg.UpstreamAPIBase)
	}
}

func TestFromEnv_default_stream_hosts(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STREAM_HOST_SUFFIXES", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := map[string]bool{"bilivideo.com": true, "bilivideo.cn": true, "akamaized.net": true, "hdslb.com": true}
	if len(cfg.StreamHostSuffixes) != len(want) {
		t.Fatalf("suffixes = %v", cfg.StreamHostSuffixes)
	}
	for _, s := range cfg.StreamHostSuffixes {
		if !want[s] {
			t.Errorf("unexpected default suffix %q", s)
		}
	}
}

func TestFromEnv_file_then_env(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash-proxy.toml")
	body := `
port = "9000"
upstream_timeout = "2s"
proxy_path_prefix = "media/"
stream_host_suffixes = [".bilivideo.com", ".akamaized.net"]
public_base_url = "https://example.org/"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("UPSTREAM_TIMEOUT", "")
	t.Setenv("PROXY_PATH_PREFIX", "")
	t.Setenv("STREAM_HOST_SUFFIXES", "")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should win over file: port = %s", cfg.Port)
	}
	if cfg.UpstreamTimeout != 2*time.Second {
		t.Errorf("timeout = %s", cfg.UpstreamTimeout)
	}
	if cfg.ProxyPathPrefix != "/media" {
		t.Errorf("prefix = %s", cfg.ProxyPathPrefix)
	}
	if cfg.PublicBaseURL != "https://example.org" {
		t.Errorf("public base = %s", cfg.PublicBaseURL)
	}
	if len(cfg.StreamHostSuffixes) != 2 || cfg.StreamHostSuffixes[1] != ".akamaized.net" {
		t.Errorf("suffixes = %v", cfg.StreamHostSuffixes)
	}
}

func TestFromEnv_invalid(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "http")
	if _, err := FromEnv(); err == nil {
		t.Error("expected error for non-numeric port")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte(`upstream_timeout = "soon"`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")
	t.Setenv("CONFIG_FILE", path)
	if _, err := FromEnv(); err == nil {
		t.Error("expected error for bad upstream_timeout")
	}
}

func TestReadFile_missing(t *testing.T) {
	cfg := Default()
	if err := cfg.ReadFile(filepath.Join(t.TempDir(), "nope.toml")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", time.Minute},
		{"3", 3 * time.Second},
		{"1500ms", 1500 * time.Millisecond},
		{"garbage", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.val)
		if got := GetEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
			t.Errorf("GetEnvDuration(%q) = %s, want %s", tt.val, got, tt.want)
		}
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,")
	got := GetEnvList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("GetEnvList = %v", got)
	}
	t.Setenv("TEST_LIST", "")
	if got := GetEnvList("TEST_LIST", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("fallback = %v", got)
	}
}
