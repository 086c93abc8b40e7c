package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses the process environment and validates the result. Missing
// required Stripe keys are reported here so the process fails at startup.
func Load() (*Config, error) {
	return LoadWithOptions(env.Options{})
}

func LoadWithOptions(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
