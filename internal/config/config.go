package config

import (
	"fmt"
	"math"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/paramreg/internal/registry"
)

// #region config
// Config is the process configuration, read from PARAMREG_* variables.
// Command-line flags override individual fields after Load.
type Config struct {
	DBPath               string  `env:"PARAMREG_DB" envDefault:"paramreg.db"`
	LogLevel             string  `env:"PARAMREG_LOG_LEVEL" envDefault:"info"`
	Development          bool    `env:"PARAMREG_LOG_DEV" envDefault:"false"`
	RelativeTolerance    float64 `env:"PARAMREG_MISMATCH_REL_TOL" envDefault:"1e-3"`
	AbsoluteTolerance    float64 `env:"PARAMREG_MISMATCH_ABS_TOL" envDefault:"1e-12"`
	DatasetRoot          string  `env:"PARAMREG_DATASET_ROOT" envDefault:"."`
	RulesPath            string  `env:"PARAMREG_RULES"`
	CombineUncertainties bool    `env:"PARAMREG_COMBINE_UNCERTAINTIES" envDefault:"false"`
}

// #endregion config

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if err := c.Tolerance().Validate(); err != nil {
		return fmt.Errorf("invalid mismatch tolerance: %w", err)
	}
	if math.IsInf(c.RelativeTolerance, 0) || math.IsInf(c.AbsoluteTolerance, 0) {
		return fmt.Errorf("invalid mismatch tolerance: must be finite")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	return nil
}

// Tolerance returns the registry mismatch tolerance.
func (c Config) Tolerance() registry.Tolerance {
	return registry.Tolerance{Relative: c.RelativeTolerance, Absolute: c.AbsoluteTolerance}
}
