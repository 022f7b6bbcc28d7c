package config

import (
	"fmt"
	"os"
	"strconv"
)

type SandboxConfig struct {
	Port            string
	MarketplaceName string
	ClientID        string
	ClientSecret    string
	SeedFile        string // JSONL; empty loads the built-in seed
	// Quotas in requests per second; zero disables them.
	CommandRate  float64
	CommandBurst int
	QueryRate    float64
	QueryBurst   int
}

func LoadSandboxConfig() (*SandboxConfig, error) {
	commandRate, err := parseFloat("SANDBOX_COMMAND_RATE", "1.67")
	if err != nil {
		return nil, err
	}
	queryRate, err := parseFloat("SANDBOX_QUERY_RATE", "0")
	if err != nil {
		return nil, err
	}
	commandBurst, err := parseInt("SANDBOX_COMMAND_BURST", "10")
	if err != nil {
		return nil, err
	}
	queryBurst, err := parseInt("SANDBOX_QUERY_BURST", "50")
	if err != nil {
		return nil, err
	}

	cfg := &SandboxConfig{
		Port:            getEnvOrDefault("SANDBOX_PORT", "8080"),
		MarketplaceName: getEnvOrDefault("SANDBOX_MARKETPLACE", "sandbox-marketplace"),
		ClientID:        getEnvOrDefault("SANDBOX_CLIENT_ID", "sandbox-client-id"),
		ClientSecret:    getEnvOrDefault("SANDBOX_CLIENT_SECRET", "sandbox-client-secret"),
		SeedFile:        getEnvOrDefault("SANDBOX_SEED_FILE", ""),
		CommandRate:     commandRate,
		CommandBurst:    commandBurst,
		QueryRate:       queryRate,
		QueryBurst:      queryBurst,
	}

	// Validate
	if cfg.CommandRate < 0 || cfg.QueryRate < 0 {
		return nil, fmt.Errorf("invalid sandbox quota: rates must not be negative")
	}
	if cfg.SeedFile != "" {
		if _, err := os.Stat(cfg.SeedFile); err != nil {
			return nil, fmt.Errorf("invalid SANDBOX_SEED_FILE: %w", err)
		}
	}

	return cfg, nil
}

func parseFloat(key, defaultVal string) (float64, error) {
	v, err := strconv.ParseFloat(getEnvOrDefault(key, defaultVal), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(key, defaultVal string) (int, error) {
	v, err := strconv.Atoi(getEnvOrDefault(key, defaultVal))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
