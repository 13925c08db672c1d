package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
	if cfg.WikiDB.Queue != DefaultWikiDBQueue {
		t.Errorf("WikiDB.Queue = %q, want %q", cfg.WikiDB.Queue, DefaultWikiDBQueue)
	}
	if cfg.Database.Driver != "sqlite3" || cfg.Database.MaxPoolSize != DefaultMaxPoolSize {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Relay.Timeout != DefaultRelayTimeout {
		t.Errorf("Relay.Timeout = %v, want %v", cfg.Relay.Timeout, DefaultRelayTimeout)
	}
	if cfg.Auth.Enabled {
		t.Error("Auth.Enabled = true, want false")
	}
	if !cfg.Deploy.RunsDatabase() || !cfg.Deploy.RunsHTTP() {
		t.Errorf("Deploy = %+v, want both tiers", cfg.Deploy)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.ini")
	content := `[http]
port = 9090

[database]
driver = postgres
url = postgres://wiki@localhost/wiki
max_pool_size = 4

[auth]
enabled = true
token_ttl = 15m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOLIO_HTTP_PORT", "9191")
	t.Setenv("FOLIO_WIKIDB_QUEUE", "wiki.queue")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9191 {
		t.Errorf("HTTP.Port = %d, want env override 9191", cfg.HTTP.Port)
	}
	if cfg.WikiDB.Queue != "wiki.queue" {
		t.Errorf("WikiDB.Queue = %q", cfg.WikiDB.Queue)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.MaxPoolSize != 4 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if !cfg.Auth.Enabled || cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "unknown driver", env: map[string]string{"FOLIO_DATABASE_DRIVER": "oracle"}, want: KeyDBDriver},
		{name: "unknown relay", env: map[string]string{"FOLIO_RELAY_TYPE": "kafka"}, want: KeyRelayType},
		{name: "split deploy on local relay", env: map[string]string{"FOLIO_DEPLOY_MODE": "http"}, want: KeyDeployMode},
		{name: "empty pool", env: map[string]string{"FOLIO_DATABASE_MAX_POOL_SIZE": "0"}, want: KeyDBMaxPoolSize},
		{name: "unknown render format", env: map[string]string{"FOLIO_RENDER_FORMAT": "rst"}, want: KeyRenderFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.HTTP.TrustedProxies) != 0 {
		t.Errorf("TrustedProxies = %v, want none by default", cfg.HTTP.TrustedProxies)
	}

	t.Setenv("FOLIO_HTTP_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, 0, len(cfg.HTTP.TrustedProxies))
	for _, p := range cfg.HTTP.TrustedProxies {
		got = append(got, p.String())
	}
	if strings.Join(got, " ") != "10.0.0.0/8 127.0.0.1/32" {
		t.Errorf("TrustedProxies = %v", got)
	}

	t.Setenv("FOLIO_HTTP_TRUSTED_PROXIES", "not-an-ip")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), KeyHTTPTrusted) {
		t.Errorf("Load() error = %v, want mention of %q", err, KeyHTTPTrusted)
	}
}
