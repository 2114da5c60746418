package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"procaffinity/internal/affinity"
)

const (
	DefaultProcessName = "so2game.exe"
	DefaultLogLevel    = "info"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds defaults for the target process and policy parameters. It
// never records allocations.
type Config struct {
	Process   string `yaml:"process"`
	GroupSize int    `yaml:"group_size"`
	LogLevel  string `yaml:"log_level"`
	DryRun    bool   `yaml:"dry_run"`
}

func Default() Config {
	return Config{
		Process:   DefaultProcessName,
		GroupSize: affinity.DefaultGroupSize,
		LogLevel:  DefaultLogLevel,
	}
}

// Load reads a YAML settings file over the defaults. An empty path returns
// the defaults. Unknown keys are rejected so typos surface as errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	logrus.WithField("path", path).Debug("loaded config")
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Process) == "" {
		return fmt.Errorf("%w: process name is empty", ErrInvalidConfig)
	}
	if c.GroupSize < 1 {
		return fmt.Errorf("%w: group_size must be at least 1, got %d", ErrInvalidConfig, c.GroupSize)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
