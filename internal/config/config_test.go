package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wheelhouse.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Addr())
	require.Len(t, cfg.Games, 2)
	assert.Equal(t, "wheel", cfg.Games[0].Name)
	assert.Equal(t, "crash", cfg.Games[1].Name)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server {
  address      = "0.0.0.0"
  port         = 9090
  log_level    = "debug"
  database_url = "postgres://localhost/wheelhouse"
}

game "roulette" {
  kind            = "fixed_phase"
  betting_seconds = 20
  slots           = 54
}

game "rocket" {
  kind            = "escalating"
  tick_ms         = 100
  growth_rate     = 0.02
  house_edge      = 0.05
  max_crash_point = 500
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "postgres://localhost/wheelhouse", cfg.Server.DatabaseURL)

	require.Len(t, cfg.Games, 2)

	rcfg := cfg.Games[0].RoundConfig()
	assert.Equal(t, "roulette", rcfg.Game)
	assert.Equal(t, round.KindFixedPhase, rcfg.Kind)
	assert.Equal(t, 20*time.Second, rcfg.BettingWindow)
	assert.Equal(t, 54, rcfg.Slots)

	rcfg = cfg.Games[1].RoundConfig()
	assert.Equal(t, round.KindEscalating, rcfg.Kind)
	assert.Equal(t, 100*time.Millisecond, rcfg.TickInterval)
	assert.Equal(t, 0.02, rcfg.GrowthRate)
	assert.Equal(t, 0.05, rcfg.HouseEdge)
	assert.Equal(t, 500.0, rcfg.MaxCrashPoint)
}

func TestLoadRejectsMalformedHCL(t *testing.T) {
	path := writeConfig(t, `server { address = `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "no games",
			mutate:  func(c *Config) { c.Games = nil },
			wantErr: "at least one game",
		},
		{
			name: "duplicate game names",
			mutate: func(c *Config) {
				c.Games[1].Name = c.Games[0].Name
			},
			wantErr: "duplicate game name",
		},
		{
			name:    "unknown kind",
			mutate:  func(c *Config) { c.Games[0].Kind = "roshambo" },
			wantErr: "unknown kind",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.Games[0].BettingSeconds = -1 },
			wantErr: "durations must not be negative",
		},
		{
			name:    "house edge too large",
			mutate:  func(c *Config) { c.Games[1].HouseEdge = 1.5 },
			wantErr: "house edge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
