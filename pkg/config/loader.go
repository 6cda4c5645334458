package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadSystemConfig reads a `pulse.yaml` file at path, expands environment
// variables, merges it onto DefaultSystemConfig, and validates the result.
// Missing optional files are not an error — callers that only rely on env
// vars can pass an empty path.
func LoadSystemConfig(path string) (*SystemConfig, error) {
	cfg := DefaultSystemConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, NewLoadError(path, err)
			}
			slog.Warn("system config file not found, using defaults + environment", "path", path)
		} else {
			data = ExpandEnv(data)
			var loaded SystemConfig
			if err := yaml.Unmarshal(data, &loaded); err != nil {
				return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
			}
			if err := mergo.Merge(cfg, loaded, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge system config: %w", err)
			}
		}
	}

	if dsn := os.Getenv("PULSE_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("PULSE_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if url := os.Getenv("PULSE_LLM_ADAPTER_URL"); url != "" {
		cfg.LLMAdapter.BaseURL = url
	}
	if key := os.Getenv("PULSE_LLM_ADAPTER_API_KEY"); key != "" {
		cfg.LLMAdapter.APIKey = key
	}

	if err := ValidateSystem(cfg); err != nil {
		return nil, fmt.Errorf("system config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads a local `.env` file into the process environment, the
// same optional convenience tarsy's `cmd/tarsy/main.go` offers for local
// development. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file %s: %w", path, err)
	}
	return nil
}
