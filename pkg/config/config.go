// Package config loads the server's YAML configuration file and
// applies deployment defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"pageserve/pkg/pages"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Server holds the HTTP front-end settings.
type Server struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
	// BaseDomain is the domain pages are served under. Empty disables
	// the subdomain form.
	BaseDomain string `yaml:"base_domain"`
	Name       string `yaml:"name"`
}

// Upstream holds the forge connection settings.
type Upstream struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// Branches restricts which branches are servable. Empty allows all.
	Branches       []string `yaml:"branches"`
	MaxAssetSize   int64    `yaml:"max_asset_size"`
	RequestTimeout Duration `yaml:"request_timeout"`
	RetryMax       int      `yaml:"retry_max"`
}

// Cache holds the cache decorator settings.
type Cache struct {
	Enabled bool `yaml:"enabled"`
	// Store selects the substrate: "memory", "sqlite" or "redis".
	Store string `yaml:"store"`
	// Addr is the Redis address when Store is "redis".
	Addr string `yaml:"addr"`
	// Path is the database file when Store is "sqlite".
	Path        string   `yaml:"path"`
	PositiveTTL Duration `yaml:"positive_ttl"`
	NegativeTTL Duration `yaml:"negative_ttl"`
}

// Alias is one custom-domain target tuple.
type Alias struct {
	Owner  string `yaml:"owner"`
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
}

// Config is the aggregate server configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Upstream Upstream `yaml:"upstream"`
	Cache    Cache    `yaml:"cache"`
	// Domains maps custom domain names to their target tuples.
	Domains map[string]Alias `yaml:"domains"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr: ":8080",
			Name: "pageserve",
		},
		Upstream: Upstream{
			URL:          "https://codeberg.org",
			MaxAssetSize: 8 << 20,
		},
		Cache: Cache{
			Enabled:     true,
			Store:       "memory",
			PositiveTTL: Duration(5 * time.Minute),
			NegativeTTL: Duration(30 * time.Second),
		},
	}
}

// Load reads the YAML file at filename over the defaults.
func Load(filename string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(filename)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Cache.Store {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown cache store %q", c.Cache.Store)
	}
	if c.Cache.Store == "redis" && c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache store redis requires an addr")
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream url is required")
	}
	return nil
}

// AliasTable converts the configured domain aliases into the
// resolver's lookup table. Empty name or branch fall back to the
// default literal.
func (c Config) AliasTable() map[string]pages.Location {
	table := make(map[string]pages.Location, len(c.Domains))
	for domain, alias := range c.Domains {
		table[domain] = pages.Location{
			Owner:  alias.Owner,
			Name:   alias.Name,
			Branch: alias.Branch,
		}.WithDefaults()
	}
	return table
}
