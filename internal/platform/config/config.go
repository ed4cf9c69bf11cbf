package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"bastion/internal/gateway/policy"
)

// Server captures process-level configuration.
type Server struct {
	Addr                     string
	Environment              string
	LogLevel                 string
	JWTSigningKey            string
	OperatorTokenTTL         time.Duration
	CommandTimeout           time.Duration
	GrantSweepInterval       time.Duration
	MaxConcurrentDeployments int
	PolicyFile               string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                     envOr("BASTION_ADDR", ":8080"),
		Environment:              envOr("BASTION_ENV", "development"),
		LogLevel:                 envOr("BASTION_LOG_LEVEL", "info"),
		JWTSigningKey:            os.Getenv("BASTION_JWT_SIGNING_KEY"),
		OperatorTokenTTL:         durationOr("BASTION_OPERATOR_TOKEN_TTL", time.Hour),
		CommandTimeout:           durationOr("BASTION_COMMAND_TIMEOUT", 30*time.Second),
		GrantSweepInterval:       durationOr("BASTION_GRANT_SWEEP_INTERVAL", time.Minute),
		MaxConcurrentDeployments: intOr("BASTION_MAX_CONCURRENT_DEPLOYMENTS", 4),
		PolicyFile:               os.Getenv("BASTION_POLICY_FILE"),
	}
	if cfg.JWTSigningKey == "" {
		// Development fallback; production deployments must set the key.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

// LoadPolicy reads a YAML policy file and compiles it. An empty path yields
// the built-in default policy.
func LoadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var cfg policy.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	pol, err := policy.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("compile policy file %s: %w", path, err)
	}
	return pol, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
