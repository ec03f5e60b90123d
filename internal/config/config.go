package config

import (
	"os"
	"strconv"

	"expfit/adapters/optimize"
	"expfit/domain/fit"
	"expfit/internal"
	"expfit/internal/errors"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Fit FitConfig `yaml:"fit"`
	Log LogConfig `yaml:"log"`
}

// FitConfig holds the acceptance policy and solver settings
type FitConfig struct {
	R2Thresh       float64 `yaml:"r2_thresh"`
	RMSEFracThresh float64 `yaml:"rmse_frac_thresh"`
	TryOffset      bool    `yaml:"try_offset"`
	MaxIterations  int     `yaml:"max_iterations"`
	Solver         string  `yaml:"solver"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	opts := fit.DefaultOptions()
	return &Config{
		Fit: FitConfig{
			R2Thresh:       opts.R2Thresh,
			RMSEFracThresh: opts.RMSEFracThresh,
			TryOffset:      opts.TryOffset,
			MaxIterations:  opts.MaxIterations,
			Solver:         optimize.SolverLevenbergMarquardt,
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := Default()
	applyEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// LoadFile reads a YAML file over the defaults, then applies environment
// overrides, so the environment wins over the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read config file %s", path)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to parse config file %s", path)
	}
	applyEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Options converts the fit section into evaluator options.
func (c *Config) Options() fit.Options {
	return fit.Options{
		R2Thresh:       c.Fit.R2Thresh,
		RMSEFracThresh: c.Fit.RMSEFracThresh,
		TryOffset:      c.Fit.TryOffset,
		MaxIterations:  c.Fit.MaxIterations,
	}
}

// Logger builds a logger at the configured level.
func (c *Config) Logger() *internal.Logger {
	return internal.NewLogger(internal.ParseLogLevel(c.Log.Level))
}

func applyEnv(config *Config) {
	config.Fit.R2Thresh = getEnvFloatOrDefault("EXPFIT_R2_THRESH", config.Fit.R2Thresh)
	config.Fit.RMSEFracThresh = getEnvFloatOrDefault("EXPFIT_RMSE_FRAC_THRESH", config.Fit.RMSEFracThresh)
	config.Fit.TryOffset = getEnvBoolOrDefault("EXPFIT_TRY_OFFSET", config.Fit.TryOffset)
	config.Fit.MaxIterations = getEnvIntOrDefault("EXPFIT_MAX_ITERATIONS", config.Fit.MaxIterations)
	config.Fit.Solver = getEnvOrDefault("EXPFIT_SOLVER", config.Fit.Solver)
	config.Log.Level = getEnvOrDefault("LOG_LEVEL", config.Log.Level)
}

func validateConfig(config *Config) error {
	if err := config.Options().Validate(); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if _, err := optimize.NewSolver(config.Fit.Solver); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
