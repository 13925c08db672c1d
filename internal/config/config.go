// Package config loads the wiki configuration from defaults, an optional INI
// file and FOLIO_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/spf13/viper"
)

const (
	KeyHTTPPort          = "http.port"
	KeyHTTPRateLimit     = "http.rate_limit"
	KeyHTTPTrusted       = "http.trusted_proxies"
	KeyWikiDBQueue       = "wikidb.queue"
	KeyDBDriver          = "database.driver"
	KeyDBURL             = "database.url"
	KeyDBMaxPoolSize     = "database.max_pool_size"
	KeyRelayType         = "relay.type"
	KeyRelayAddr         = "relay.addr"
	KeyRelayPassword     = "relay.password"
	KeyRelayDB           = "relay.db"
	KeyRelayTimeout      = "relay.timeout"
	KeyDeployMode        = "deploy.mode"
	KeyAuthEnabled       = "auth.enabled"
	KeyAuthSessionKey    = "auth.session_key"
	KeyAuthJWTSecret     = "auth.jwt_secret"
	KeyAuthTokenTTL      = "auth.token_ttl"
	KeyRenderFormat      = "render.format"
	KeyRenderStyle       = "render.style"
	KeyBackupTarget      = "backup.target"
	KeyBackupSchedule    = "backup.schedule"
	KeyBackupGlotURL     = "backup.glot_url"
	KeyBackupGlotToken   = "backup.glot_token"
	KeyBackupS3Bucket    = "backup.s3_bucket"
	KeyBackupS3Region    = "backup.s3_region"
	KeyBackupS3Prefix    = "backup.s3_prefix"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	envPrefix            = "FOLIO"
	DefaultConfigPath    = "data/folio.ini"
	DefaultWikiDBQueue   = "wikidb.queue"
	DefaultDatabaseURL   = "file:data/wiki.db?_fk=1"
	DefaultMaxPoolSize   = 30
	DefaultHTTPPort      = 8080
	DefaultRelayTimeout  = 30 * time.Second
	DefaultTokenTTL      = 60 * time.Minute
	DefaultGlotURL       = "https://snippets.glot.io/snippets"
	DefaultS3Region      = "us-east-1"
	DefaultS3Prefix      = "wiki-backups/"
	DefaultRenderStyle   = "friendly"
	DefaultHTTPRateLimit = 5.0
)

var defaults = map[string]any{
	KeyHTTPPort:        DefaultHTTPPort,
	KeyHTTPRateLimit:   DefaultHTTPRateLimit,
	KeyHTTPTrusted:     "",
	KeyWikiDBQueue:     DefaultWikiDBQueue,
	KeyDBDriver:        "sqlite3",
	KeyDBURL:           DefaultDatabaseURL,
	KeyDBMaxPoolSize:   DefaultMaxPoolSize,
	KeyRelayType:       "local",
	KeyRelayAddr:       "localhost:6379",
	KeyRelayPassword:   "",
	KeyRelayDB:         0,
	KeyRelayTimeout:    DefaultRelayTimeout,
	KeyDeployMode:      "all",
	KeyAuthEnabled:     false,
	KeyAuthSessionKey:  "",
	KeyAuthJWTSecret:   "",
	KeyAuthTokenTTL:    DefaultTokenTTL,
	KeyRenderFormat:    "markdown",
	KeyRenderStyle:     DefaultRenderStyle,
	KeyBackupTarget:    "glot",
	KeyBackupSchedule:  "",
	KeyBackupGlotURL:   DefaultGlotURL,
	KeyBackupGlotToken: "",
	KeyBackupS3Bucket:  "",
	KeyBackupS3Region:  DefaultS3Region,
	KeyBackupS3Prefix:  DefaultS3Prefix,
	KeyLogLevel:        "info",
	KeyLogFormat:       "text",
}

// Config is the resolved configuration of one process.
type Config struct {
	HTTP     HTTP
	WikiDB   WikiDB
	Database Database
	Relay    Relay
	Deploy   Deploy
	Auth     Auth
	Render   Render
	Backup   Backup
	Log      Log
}

type HTTP struct {
	Port      int
	RateLimit float64
	// TrustedProxies are the peers whose X-Real-IP and X-Forwarded-For
	// headers are believed. Empty means none.
	TrustedProxies []netip.Prefix
}

type WikiDB struct {
	Queue string
}

type Database struct {
	Driver      string
	URL         string
	MaxPoolSize int
}

type Relay struct {
	Type     string
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

type Deploy struct {
	Mode string
}

// RunsDatabase reports whether this process hosts the database service.
func (d Deploy) RunsDatabase() bool { return d.Mode == "all" || d.Mode == "database" }

// RunsHTTP reports whether this process hosts the web tier.
func (d Deploy) RunsHTTP() bool { return d.Mode == "all" || d.Mode == "http" }

type Auth struct {
	Enabled    bool
	SessionKey string
	JWTSecret  string
	TokenTTL   time.Duration
}

type Render struct {
	Format string
	Style  string
}

type Backup struct {
	Target    string
	Schedule  string
	GlotURL   string
	GlotToken string
	S3Bucket  string
	S3Region  string
	S3Prefix  string
}

type Log struct {
	Level  string
	Format string
}

// Load reads path (if it exists) on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	vp := viper.New()
	for key, value := range defaults {
		vp.SetDefault(key, value)
	}

	if path != "" {
		iniCfg, err := ini.Load(path)
		switch {
		case err == nil:
			for _, section := range iniCfg.Sections() {
				for _, key := range section.Keys() {
					viperKey := strings.ToLower(section.Name() + "." + key.Name())
					if section.Name() == ini.DefaultSection {
						viperKey = strings.ToLower(key.Name())
					}
					vp.Set(viperKey, key.Value())
				}
			}
			slog.Debug("configuration file loaded", "path", path)
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("no configuration file, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	envReplacer := strings.NewReplacer(".", "_")
	for key := range defaults {
		envVarName := envPrefix + "_" + strings.ToUpper(envReplacer.Replace(key))
		if value, found := os.LookupEnv(envVarName); found {
			vp.Set(key, value)
		}
	}

	cfg := &Config{
		HTTP: HTTP{
			Port:      vp.GetInt(KeyHTTPPort),
			RateLimit: vp.GetFloat64(KeyHTTPRateLimit),
		},
		WikiDB: WikiDB{Queue: vp.GetString(KeyWikiDBQueue)},
		Database: Database{
			Driver:      vp.GetString(KeyDBDriver),
			URL:         vp.GetString(KeyDBURL),
			MaxPoolSize: vp.GetInt(KeyDBMaxPoolSize),
		},
		Relay: Relay{
			Type:     vp.GetString(KeyRelayType),
			Addr:     vp.GetString(KeyRelayAddr),
			Password: vp.GetString(KeyRelayPassword),
			DB:       vp.GetInt(KeyRelayDB),
			Timeout:  vp.GetDuration(KeyRelayTimeout),
		},
		Deploy: Deploy{Mode: vp.GetString(KeyDeployMode)},
		Auth: Auth{
			Enabled:    vp.GetBool(KeyAuthEnabled),
			SessionKey: vp.GetString(KeyAuthSessionKey),
			JWTSecret:  vp.GetString(KeyAuthJWTSecret),
			TokenTTL:   vp.GetDuration(KeyAuthTokenTTL),
		},
		Render: Render{
			Format: vp.GetString(KeyRenderFormat),
			Style:  vp.GetString(KeyRenderStyle),
		},
		Backup: Backup{
			Target:    vp.GetString(KeyBackupTarget),
			Schedule:  vp.GetString(KeyBackupSchedule),
			GlotURL:   vp.GetString(KeyBackupGlotURL),
			GlotToken: vp.GetString(KeyBackupGlotToken),
			S3Bucket:  vp.GetString(KeyBackupS3Bucket),
			S3Region:  vp.GetString(KeyBackupS3Region),
			S3Prefix:  vp.GetString(KeyBackupS3Prefix),
		},
		Log: Log{
			Level:  vp.GetString(KeyLogLevel),
			Format: vp.GetString(KeyLogFormat),
		},
	}

	trusted, err := ParsePrefixes(vp.GetString(KeyHTTPTrusted))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyHTTPTrusted, err)
	}
	cfg.HTTP.TrustedProxies = trusted

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParsePrefixes parses a comma separated list of CIDR prefixes or bare
// addresses. A bare address becomes a single-host prefix.
func ParsePrefixes(list string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{KeyDBDriver, c.Database.Driver, []string{"sqlite3", "postgres", "pgx", "mysql"}},
		{KeyRelayType, c.Relay.Type, []string{"local", "redis"}},
		{KeyDeployMode, c.Deploy.Mode, []string{"all", "database", "http"}},
		{KeyRenderFormat, c.Render.Format, []string{"markdown", "org"}},
		{KeyBackupTarget, c.Backup.Target, []string{"glot", "s3"}},
		{KeyLogFormat, c.Log.Format, []string{"text", "json"}},
	}
	for _, check := range checks {
		if !slices.Contains(check.allowed, check.value) {
			return fmt.Errorf("invalid %s %q (allowed: %s)", check.key, check.value, strings.Join(check.allowed, ", "))
		}
	}
	if c.Database.MaxPoolSize <= 0 {
		return fmt.Errorf("invalid %s %d: must be positive", KeyDBMaxPoolSize, c.Database.MaxPoolSize)
	}
	if c.Deploy.Mode != "all" && c.Relay.Type == "local" {
		return fmt.Errorf("%s %q needs a shared relay, set %s to redis", KeyDeployMode, c.Deploy.Mode, KeyRelayType)
	}
	return nil
}
