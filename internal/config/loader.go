package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/casper-network/highway/internal/highway/model"
	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads and parses a TOML config file, applies environment variable
// overrides, and validates the result.
// Config precedence (highest first): Environment variables → File → Defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse TOML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies HIGHWAY_* environment variable overrides.
// Env var format: HIGHWAY_<SECTION>_<FIELD> (e.g., HIGHWAY_P2P_LISTEN_ADDR);
// top-level and [highway] fields use HIGHWAY_<FIELD> (e.g., HIGHWAY_MONIKER).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HIGHWAY_MONIKER"); v != "" {
		cfg.Moniker = v
	}
	if v := os.Getenv("HIGHWAY_CHAIN_ID"); v != "" {
		cfg.ChainID = v
	}

	// Highway.
	if v := os.Getenv("HIGHWAY_ROUND_EXP"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.Highway.RoundExp = model.RoundExponent(n)
		}
	}
	if v := os.Getenv("HIGHWAY_FAULT_TOLERANCE_WEIGHT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Highway.FaultTolerance = n
		}
	}
	if v := os.Getenv("HIGHWAY_MAX_BLOCK_GAS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Highway.MaxBlockGas = n
		}
	}
	if v := os.Getenv("HIGHWAY_CLOCK_DRIFT_SLACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Highway.ClockDriftSlack = Duration{d}
		}
	}

	// P2P.
	if v := os.Getenv("HIGHWAY_P2P_LISTEN_ADDR"); v != "" {
		cfg.P2P.ListenAddr = v
	}
	if v := os.Getenv("HIGHWAY_P2P_SEEDS"); v != "" {
		cfg.P2P.Seeds = strings.Split(v, ",")
	}
	if v := os.Getenv("HIGHWAY_P2P_MAX_PEERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.P2P.MaxPeers = n
		}
	}

	// Storage.
	if v := os.Getenv("HIGHWAY_STORAGE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("HIGHWAY_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}

	// RPC.
	if v := os.Getenv("HIGHWAY_RPC_HTTP_ADDR"); v != "" {
		cfg.RPC.HTTPAddr = v
	}

	// Execution.
	if v := os.Getenv("HIGHWAY_EXECUTION_WASM_PATH"); v != "" {
		cfg.Execution.WASMPath = v
	}
	if v := os.Getenv("HIGHWAY_EXECUTION_GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Execution.GasLimit = n
		}
	}
	if v := os.Getenv("HIGHWAY_EXECUTION_FUEL_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Execution.FuelLimit = n
		}
	}

	// Telemetry.
	if v := os.Getenv("HIGHWAY_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HIGHWAY_TELEMETRY_ADDR"); v != "" {
		cfg.Telemetry.Addr = v
	}
}
