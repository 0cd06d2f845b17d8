package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CLENS_CONFIG is set
//  3. env (prefix CLENS_)
//  4. legacy DATASET_N_* variables, used only when the layers above
//     configured no datasets
//
// Validation runs once here; a malformed configuration fails the
// process instead of failing per-request.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("CLENS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: CLENS_ADDR, CLENS_LOG_LEVEL, ...
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("CLENS_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "clens_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if len(cfg.Datasets) == 0 {
		legacy, err := legacyEnvDatasets(os.Getenv)
		if err != nil {
			return nil, err
		}
		cfg.Datasets = legacy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// legacyEnvDatasets reads the DATASET_N_NAME / DATASET_N_DESC /
// DATASET_N_CONNECTION / DATASET_N_DICTIONARY variable scheme used by
// earlier deployments. IDs are scanned from 1 until the first gap.
func legacyEnvDatasets(getenv func(string) string) ([]Dataset, error) {
	var out []Dataset
	for id := 1; ; id++ {
		name := getenv(fmt.Sprintf("DATASET_%d_NAME", id))
		if name == "" {
			break
		}
		d := Dataset{
			ID:          id,
			Name:        name,
			Description: getenv(fmt.Sprintf("DATASET_%d_DESC", id)),
			DSN:         getenv(fmt.Sprintf("DATASET_%d_CONNECTION", id)),
		}
		if dict := getenv(fmt.Sprintf("DATASET_%d_DICTIONARY", id)); dict != "" {
			if err := json.Unmarshal([]byte(dict), &d.Dictionary); err != nil {
				return nil, fmt.Errorf("%w: DATASET_%d_DICTIONARY is not valid JSON: %v", ErrInvalidConfig, id, err)
			}
		}
		out = append(out, d)
	}
	return out, nil
}
