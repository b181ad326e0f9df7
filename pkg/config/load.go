package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/introspectai/learnloop/pkg/errors"
)

// Load reads a YAML config file, overlays it on the defaults, applies
// environment fallbacks and validates the result. An empty path returns the
// validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.ResourceNotFound, "failed to read config file"),
				errors.Fields{"path": path},
			)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
				errors.Fields{"path": path},
			)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if v := os.Getenv("LEARNLOOP_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LEARNLOOP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks a configuration against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}
	return nil
}
