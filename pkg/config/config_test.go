package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pageserve/pkg/pages"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://codeberg.org", cfg.Upstream.URL)
	assert.Equal(t, int64(8<<20), cfg.Upstream.MaxAssetSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "memory", cfg.Cache.Store)
	assert.Equal(t, 5*time.Minute, cfg.Cache.PositiveTTL.Std())
	assert.Equal(t, 30*time.Second, cfg.Cache.NegativeTTL.Std())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  base_domain: example.com
  name: my-pages
upstream:
  url: https://forge.example.com
  token: sekrit
  branches: [pages, dev]
  request_timeout: 10s
cache:
  store: redis
  addr: 127.0.0.1:6379
  positive_ttl: 2m
  negative_ttl: 15s
domains:
  alice.dev:
    owner: alice
  docs.example.com:
    owner: bob
    name: docs
    branch: main
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "example.com", cfg.Server.BaseDomain)
	assert.Equal(t, "https://forge.example.com", cfg.Upstream.URL)
	assert.Equal(t, "sekrit", cfg.Upstream.Token)
	assert.Equal(t, []string{"pages", "dev"}, cfg.Upstream.Branches)
	assert.Equal(t, 10*time.Second, cfg.Upstream.RequestTimeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.Cache.PositiveTTL.Std())
	assert.Equal(t, 15*time.Second, cfg.Cache.NegativeTTL.Std())

	table := cfg.AliasTable()
	assert.Equal(t, pages.Location{Owner: "alice", Name: "pages", Branch: "pages"}, table["alice.dev"])
	assert.Equal(t, pages.Location{Owner: "bob", Name: "docs", Branch: "main"}, table["docs.example.com"])
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
server:
  base_domain: example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://codeberg.org", cfg.Upstream.URL)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	path := writeConfig(t, `
cache:
  store: memcached
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown cache store")
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
cache:
  store: redis
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "requires an addr")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
cache:
  positive_ttl: five minutes
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}
