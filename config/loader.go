package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Loader reads a config struct from an optional YAML file, then applies
// environment overrides. Priority: Env Vars > YAML > Defaults.
type Loader[T any] struct {
	envPrefix   string
	configPath  string
	fileOnly    bool
	requireFile bool
}

type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	fileOnly    bool
	requireFile bool
}

// FileOnly skips environment overrides.
func FileOnly() LoaderOption {
	return func(o *loaderOptions) { o.fileOnly = true }
}

// RequireFile makes a missing config file an error instead of a no-op.
func RequireFile() LoaderOption {
	return func(o *loaderOptions) { o.requireFile = true }
}

func NewLoader[T any](envPrefix, configPath string, opts ...LoaderOption) *Loader[T] {
	var o loaderOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{
		envPrefix:   envPrefix,
		configPath:  configPath,
		fileOnly:    o.fileOnly,
		requireFile: o.requireFile,
	}
}

func (l *Loader[T]) Load() (*T, error) {
	var cfg T

	if l.configPath != "" {
		raw, err := os.ReadFile(l.configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file %s: %w", l.configPath, err)
			}
		case errors.Is(err, os.ErrNotExist) && !l.requireFile:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if l.requireFile {
		return nil, errors.New("config file path is required")
	}

	if l.fileOnly {
		return &cfg, nil
	}

	if err := envconfig.Process(l.envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	return &cfg, nil
}
