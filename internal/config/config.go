// Package config loads and validates the process's single YAML
// configuration file (spec §4.8), using gopkg.in/yaml.v3 per the
// teacher's configuration-loading convention.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// JWT holds the signing configuration for internal/auth.
type JWT struct {
	SigningKey string        `yaml:"signing_key"`
	Algorithm  string        `yaml:"algorithm"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// Store selects and configures the persistence backend for internal/store.
type Store struct {
	Backend   string `yaml:"backend"` // "bolt" | "sqlite" | "memory"
	BoltPath  string `yaml:"bolt_path"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

// Live holds the per-bracket actor tunables for internal/live.
type Live struct {
	SubscriberQueueCap       int           `yaml:"subscriber_queue_cap"`
	MaxSubscribersPerBracket int           `yaml:"max_subscribers_per_bracket"`
	StoreRetryMaxElapsed     time.Duration `yaml:"store_retry_max_elapsed"`
}

// Session holds per-connection tunables for internal/session.
type Session struct {
	FrameRateLimit float64 `yaml:"frame_rate_limit"`
	FrameRateBurst int     `yaml:"frame_rate_burst"`
}

// Cors configures the rs/cors wrapper around the router. An empty
// AllowedOrigins leaves the router unwrapped, so no Access-Control
// headers are ever emitted and only same-origin requests succeed.
type Cors struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the full process configuration (spec §4.8).
type Config struct {
	ListenAddr    string  `yaml:"listen_addr"`
	JWT           JWT     `yaml:"jwt"`
	Store         Store   `yaml:"store"`
	UserTablePath string  `yaml:"user_table_path"`
	Live          Live    `yaml:"live"`
	Session       Session `yaml:"session"`
	Cors          Cors    `yaml:"cors"`
	Development   bool    `yaml:"development"`
}

var validAlgorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}
var validBackends = map[string]bool{"bolt": true, "sqlite": true, "memory": true}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.SigningKey == "" {
		return errors.New("config: jwt.signing_key is required")
	}
	if !validAlgorithms[c.JWT.Algorithm] {
		return errors.Errorf("config: unknown jwt.algorithm %q", c.JWT.Algorithm)
	}
	if !validBackends[c.Store.Backend] {
		return errors.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}
	if c.ListenAddr == "" {
		return errors.New("config: listen_addr is required")
	}
	return nil
}
