package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, 32))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "crypto:\n  key: "+validKey()+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Database.Path != DefaultDBPath {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, DefaultDBPath)
	}
	if cfg.Database.MaxOpenConns != DefaultDBMaxOpenConns {
		t.Errorf("Database.MaxOpenConns = %d, want %d", cfg.Database.MaxOpenConns, DefaultDBMaxOpenConns)
	}
	if cfg.Server.ListenAddr != DefaultServerListenAddr {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, DefaultServerListenAddr)
	}
	if cfg.Telegram.APIURL != DefaultTelegramAPIURL {
		t.Errorf("Telegram.APIURL = %q, want %q", cfg.Telegram.APIURL, DefaultTelegramAPIURL)
	}
	if cfg.Telegram.RedirectTimeout != DefaultTelegramRedirectTimeout {
		t.Errorf("Telegram.RedirectTimeout = %v, want %v", cfg.Telegram.RedirectTimeout, DefaultTelegramRedirectTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  json: true
database:
  path: /tmp/proxy.db
server:
  listen_addr: ":9090"
crypto:
  key: `+validKey()+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Database.Path != "/tmp/proxy.db" {
		t.Errorf("Database.Path = %q, want /tmp/proxy.db", cfg.Database.Path)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Server.ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing crypto key",
			content: "log:\n  level: info\n",
		},
		{
			name:    "bad log level",
			content: "log:\n  level: loud\ncrypto:\n  key: " + validKey() + "\n",
		},
		{
			name:    "bad api url",
			content: "telegram:\n  api_url: not-a-url\ncrypto:\n  key: " + validKey() + "\n",
		},
		{
			name:    "key not base64",
			content: "crypto:\n  key: '!!!'\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() should reject invalid configuration")
			}
		})
	}
}
