package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for lendingd. Values come from an
// optional YAML file overlaid with environment variables; env wins.
type Config struct {
	Listen       string `yaml:"listen"`
	DataDir      string `yaml:"data_dir"`
	ParamsFile   string `yaml:"params_file"`
	Environment  string `yaml:"environment"`
	RatePerMin   int    `yaml:"rate_per_min"`
	AdminToken   string `yaml:"admin_token"`
	VaultURL     string `yaml:"vault_url"`
	OracleURL    string `yaml:"oracle_url"`
	AuthorityURL string `yaml:"authority_url"`
	YieldURL     string `yaml:"yield_url"`
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
}

const (
	envListen       = "LENDINGD_LISTEN"
	envDataDir      = "LENDINGD_DATA_DIR"
	envParamsFile   = "LENDINGD_PARAMS_FILE"
	envEnvironment  = "LENDINGD_ENV"
	envRatePerMin   = "LENDINGD_RATE_PER_MIN"
	envAdminToken   = "LENDINGD_ADMIN_TOKEN"
	envVaultURL     = "LENDINGD_VAULT_URL"
	envOracleURL    = "LENDINGD_ORACLE_URL"
	envAuthorityURL = "LENDINGD_AUTHORITY_URL"
	envYieldURL     = "LENDINGD_YIELD_URL"
	envOTELEndpoint = "LENDINGD_OTEL_ENDPOINT"
	envOTELInsecure = "LENDINGD_OTEL_INSECURE"

	defaultListen     = "0.0.0.0:9460"
	defaultDataDir    = "./lendingd-data"
	defaultRatePerMin = 120
)

// LoadConfig reads the optional YAML file at path and applies env overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Listen:     defaultListen,
		DataDir:    defaultDataDir,
		RatePerMin: defaultRatePerMin,
	}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.Listen = stringFromEnv(envListen, cfg.Listen)
	cfg.DataDir = stringFromEnv(envDataDir, cfg.DataDir)
	cfg.ParamsFile = stringFromEnv(envParamsFile, cfg.ParamsFile)
	cfg.Environment = stringFromEnv(envEnvironment, cfg.Environment)
	cfg.RatePerMin = intFromEnv(envRatePerMin, cfg.RatePerMin)
	cfg.AdminToken = stringFromEnv(envAdminToken, cfg.AdminToken)
	cfg.VaultURL = stringFromEnv(envVaultURL, cfg.VaultURL)
	cfg.OracleURL = stringFromEnv(envOracleURL, cfg.OracleURL)
	cfg.AuthorityURL = stringFromEnv(envAuthorityURL, cfg.AuthorityURL)
	cfg.YieldURL = stringFromEnv(envYieldURL, cfg.YieldURL)
	cfg.OTELEndpoint = stringFromEnv(envOTELEndpoint, cfg.OTELEndpoint)
	cfg.OTELInsecure = boolFromEnv(envOTELInsecure, cfg.OTELInsecure)
	return cfg, nil
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address required")
	}
	if cfg.RatePerMin < 0 {
		return fmt.Errorf("rate limit per minute must be non-negative")
	}
	for name, url := range map[string]string{
		"vault_url":     cfg.VaultURL,
		"oracle_url":    cfg.OracleURL,
		"authority_url": cfg.AuthorityURL,
	} {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("%s required", name)
		}
	}
	return nil
}

// Sanitized returns a copy with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	if clone.AdminToken != "" {
		clone.AdminToken = maskSecret(clone.AdminToken)
	}
	return clone
}

func maskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func stringFromEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func boolFromEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
