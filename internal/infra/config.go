package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const insecureSecret = "change-me-in-production"

// Store drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Server
	APIPort            int    `env:"API_PORT" envDefault:"4000"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
	// Comma-separated IPs or CIDRs of reverse proxies whose X-Forwarded-For is believed.
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	// Store
	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"file"`
	DataPath         string        `env:"DATA_PATH" envDefault:"data/db.json"`
	StoreRetries     int           `env:"STORE_RETRIES" envDefault:"3"`
	StoreLockTimeout time.Duration `env:"STORE_LOCK_TIMEOUT" envDefault:"5s"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"registry"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"registry"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"registry"`

	// Files
	RegionsPath      string `env:"REGIONS_PATH" envDefault:"data/kenya_regions.json"`
	RegionsSourceURL string `env:"REGIONS_SOURCE_URL"`
	UploadsDir       string `env:"UPLOADS_DIR" envDefault:"uploads"`
	MaxPhotoBytes    int64  `env:"MAX_PHOTO_BYTES" envDefault:"2097152"`

	// Sessions
	SessionSecret     string `env:"SESSION_SECRET" envDefault:"change-me-in-production"`
	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"10"`
	BootstrapUsername string `env:"BOOTSTRAP_USERNAME"`
	BootstrapPassword string `env:"BOOTSTRAP_PASSWORD"`

	// Limits
	RedisURL        string        `env:"REDIS_URL"`
	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`
	PublicRPS       float64       `env:"PUBLIC_RPS" envDefault:"5"`
	PublicBurst     int           `env:"PUBLIC_BURST" envDefault:"20"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig loads an optional .env file, then parses environment variables
// into a Config struct. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverFile, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of file, postgres, memory; got %q", c.StoreDriver)
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("STORE_RETRIES must not be negative")
	}
	if c.MaxPhotoBytes <= 0 {
		return fmt.Errorf("MAX_PHOTO_BYTES must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if (c.BootstrapUsername == "") != (c.BootstrapPassword == "") {
		return fmt.Errorf("BOOTSTRAP_USERNAME and BOOTSTRAP_PASSWORD must be set together")
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.SessionSecret == insecureSecret {
		return fmt.Errorf("SESSION_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET is too short (%d chars); minimum 32 characters required", len(c.SessionSecret))
	}
	if strings.TrimSpace(c.CORSAllowedOrigins) == "*" {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list explicit origins; set ALLOW_INSECURE_DEFAULTS=true to allow *")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. Bare addresses become
// single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range strings.Split(c.TrustedProxies, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}
