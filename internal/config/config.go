// Package config loads the engine configuration from an HCL file: one server
// block plus one game block per scheduler instance.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// Config is the complete engine configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Games  []GameConfig   `hcl:"game,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address     string `hcl:"address,optional"`
	Port        int    `hcl:"port,optional"`
	LogLevel    string `hcl:"log_level,optional"`
	DatabaseURL string `hcl:"database_url,optional"` // empty: in-memory archive
}

// GameConfig defines one game's scheduler.
type GameConfig struct {
	Name string `hcl:"name,label"`
	Kind string `hcl:"kind"`

	TickMs          int `hcl:"tick_ms,optional"`
	BettingSeconds  int `hcl:"betting_seconds,optional"`
	RevealSeconds   int `hcl:"reveal_seconds,optional"`
	ResultsSeconds  int `hcl:"results_seconds,optional"`
	StartingSeconds int `hcl:"starting_seconds,optional"`
	CrashedSeconds  int `hcl:"crashed_seconds,optional"`

	Slots           int     `hcl:"slots,optional"`
	GrowthFloor     float64 `hcl:"growth_floor,optional"`
	GrowthRate      float64 `hcl:"growth_rate,optional"`
	HouseEdge       float64 `hcl:"house_edge,optional"`
	MaxCrashPoint   float64 `hcl:"max_crash_point,optional"`
	ChannelCapacity int     `hcl:"channel_capacity,optional"`
}

// Default returns the configuration used when no file is present: one wheel
// game and one crash game on localhost.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Games: []GameConfig{
			{
				Name:           "wheel",
				Kind:           round.KindFixedPhase.String(),
				TickMs:         250,
				BettingSeconds: 15,
				RevealSeconds:  4,
				ResultsSeconds: 5,
				Slots:          37,
			},
			{
				Name:            "crash",
				Kind:            round.KindEscalating.String(),
				TickMs:          100,
				BettingSeconds:  10,
				StartingSeconds: 3,
				CrashedSeconds:  4,
				GrowthFloor:     1.0,
				GrowthRate:      0.01,
				HouseEdge:       0.03,
				MaxCrashPoint:   1000,
			},
		},
	}
}

// Load parses an HCL config file. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}

	return &cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Games) == 0 {
		return fmt.Errorf("at least one game must be configured")
	}

	seen := make(map[string]bool)
	for _, g := range c.Games {
		if seen[g.Name] {
			return fmt.Errorf("duplicate game name %q", g.Name)
		}
		seen[g.Name] = true

		switch round.Kind(g.Kind) {
		case round.KindFixedPhase, round.KindEscalating:
		default:
			return fmt.Errorf("game %s: unknown kind %q", g.Name, g.Kind)
		}
		if g.TickMs < 0 || g.BettingSeconds < 0 {
			return fmt.Errorf("game %s: durations must not be negative", g.Name)
		}
		if g.Slots < 0 {
			return fmt.Errorf("game %s: slots must not be negative", g.Name)
		}
		if g.HouseEdge < 0 || g.HouseEdge >= 1 {
			return fmt.Errorf("game %s: house edge must be in [0, 1)", g.Name)
		}
		if g.GrowthRate < 0 {
			return fmt.Errorf("game %s: growth rate must not be negative", g.Name)
		}
	}

	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoundConfig maps a game block onto the scheduler's configuration. Zero
// values defer to the scheduler's own defaults.
func (g GameConfig) RoundConfig() round.Config {
	return round.Config{
		Game:          g.Name,
		Kind:          round.Kind(g.Kind),
		TickInterval:  time.Duration(g.TickMs) * time.Millisecond,
		BettingWindow: time.Duration(g.BettingSeconds) * time.Second,
		RevealDelay:   time.Duration(g.RevealSeconds) * time.Second,
		ResultsHold:   time.Duration(g.ResultsSeconds) * time.Second,
		StartingDelay: time.Duration(g.StartingSeconds) * time.Second,
		CrashedHold:   time.Duration(g.CrashedSeconds) * time.Second,
		Slots:         g.Slots,
		GrowthFloor:   g.GrowthFloor,
		GrowthRate:    g.GrowthRate,
		HouseEdge:     g.HouseEdge,
		MaxCrashPoint: g.MaxCrashPoint,
	}
}
