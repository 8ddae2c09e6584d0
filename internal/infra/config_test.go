package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const yamlConfig = `
app:
  name: mirror-test
chain: testnet
deployments:
  testnet:
    chain_id: 296
    params:
      liquidation_reserve: "20"
      minimum_net_debt: "180"
source:
  url: http://localhost:3000/snapshot
  account: "0xabc"
journal:
  enabled: true
  path: data/journal.db
`

func TestLoadConfig_YAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "mirror-test", cfg.App.Name)
	assert.Equal(t, "0xabc", cfg.Source.Account)

	d, err := cfg.ActiveDeployment()
	require.NoError(t, err)
	assert.Equal(t, uint64(296), d.ChainID)
	assert.True(t, d.Params.LiquidationReserve.Eq(quant.FromInt(20)))
	assert.True(t, d.Params.MinimumNetDebt.Eq(quant.FromInt(180)))
	// Omitted constants fall back to protocol defaults.
	def := domain.DefaultParams()
	assert.True(t, d.Params.MinuteDecayFactor.Eq(def.MinuteDecayFactor))
	assert.True(t, d.Params.CriticalCollateralRatio.Eq(def.CriticalCollateralRatio))

	// Defaults
	assert.Equal(t, 4000, cfg.Source.PollIntervalMS)
	assert.Equal(t, 256, cfg.Engine.InboxSize)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
chain = "mainnet"

[deployments.mainnet.params]
beta = "3"

[source]
url = "https://example.org/snapshot"
poll_interval_ms = 1500
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	d, err := cfg.ActiveDeployment()
	require.NoError(t, err)
	assert.True(t, d.Params.Beta.Eq(quant.FromInt(3)))
	assert.Equal(t, 1500, cfg.Source.PollIntervalMS)
}

func TestLoadConfig_ExplicitZeroParams(t *testing.T) {
	path := writeConfig(t, "config.toml", `
chain = "zerofee"

[deployments.zerofee.params]
minimum_borrowing_rate = "0"
minimum_redemption_rate = "0"

[source]
url = "https://example.org/snapshot"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	d, err := cfg.ActiveDeployment()
	require.NoError(t, err)
	assert.True(t, d.Params.MinimumBorrowingRate.IsZero(), "got %s", d.Params.MinimumBorrowingRate)
	assert.True(t, d.Params.MinimumRedemptionRate.IsZero(), "got %s", d.Params.MinimumRedemptionRate)
	assert.True(t, d.Params.MaximumBorrowingRate.Eq(domain.DefaultParams().MaximumBorrowingRate))
}

func TestLoadConfig_MainnetFallback(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.yaml", "source:\n  url: http://localhost/snapshot\n"))
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.Chain)
	d, err := cfg.ActiveDeployment()
	require.NoError(t, err)
	assert.True(t, d.Params.MinimumCollateralRatio.Eq(quant.MustParse("1.1")))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MIRROR_SOURCE_URL", "https://override.example/snapshot")
	t.Setenv("MIRROR_ACCOUNT", "0xdef")
	t.Setenv("MIRROR_HTTP_ADDR", ":9090")
	t.Setenv("MIRROR_POLL_INTERVAL_MS", "250")

	cfg, err := LoadConfig(writeConfig(t, "config.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://override.example/snapshot", cfg.Source.URL)
	assert.Equal(t, "0xdef", cfg.Source.Account)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 250, cfg.Source.PollIntervalMS)
}

func TestLoadConfig_EnvChainSelectsImplicitMainnet(t *testing.T) {
	t.Setenv("MIRROR_CHAIN", "mainnet")

	cfg, err := LoadConfig(writeConfig(t, "config.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.Chain)
	d, err := cfg.ActiveDeployment()
	require.NoError(t, err)
	assert.True(t, d.Params.LiquidationReserve.Eq(domain.DefaultParams().LiquidationReserve))
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown chain", "chain: devnet\nsource:\n  url: http://x/\n", "chain"},
		{"bad url", "source:\n  url: ftp://x/\n", "source.url"},
		{"journal without path", "source:\n  url: http://x/\njournal:\n  enabled: true\n", "journal.path"},
		{"negative rate limit", "source:\n  url: http://x/\n  max_requests_per_sec: -1\n", "source.max_requests_per_sec"},
		{"cache without redis url", "source:\n  url: http://x/\ncache:\n  enabled: true\n  url: http://x/\n", "cache.url"},
		{"invalid params", "deployments:\n  mainnet:\n    params:\n      minute_decay_factor: \"1.5\"\nsource:\n  url: http://x/\n", "minute_decay_factor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "config.yaml", tt.yaml))
			require.Error(t, err)

			var ce *domain.ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("warn").String())
	assert.Equal(t, "INFO", ParseLevel("bogus").String())
}
