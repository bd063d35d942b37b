package run

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/run/internal/runtime"
)

// Default configuration values.
const (
	DefaultBufferItems      = 32768
	DefaultMaxOutputItems   = runtime.DefaultMaxOutputItems
	DefaultBackoff          = runtime.DefaultBackoff
	DefaultMetricsNamespace = "flow"
)

// ErrInvalidConfig is returned when config values are out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Config of the run.
type Config struct {
	// BufferItems is the least capacity of every buffer.
	BufferItems int `yaml:"buffer_items"`
	// MaxOutputItems limits items requested per work call for blocks that
	// don't set their own limit.
	MaxOutputItems int `yaml:"max_output_items"`
	// Backoff is the idle wait of blocks that made no progress.
	Backoff time.Duration `yaml:"backoff"`
	// BufferStorage is one of auto, mirror and doublemap.
	BufferStorage string `yaml:"buffer_storage"`
	// MetricsNamespace prefixes names of block metrics.
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// DefaultConfig returns config with default values.
func DefaultConfig() Config {
	return Config{
		BufferItems:      DefaultBufferItems,
		MaxOutputItems:   DefaultMaxOutputItems,
		Backoff:          DefaultBackoff,
		BufferStorage:    buffer.Auto.String(),
		MetricsNamespace: DefaultMetricsNamespace,
	}
}

// LoadConfig reads YAML config. Omitted values are set to defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values.
func (c Config) Validate() error {
	if c.BufferItems <= 0 {
		return fmt.Errorf("%w: buffer items %d", ErrInvalidConfig, c.BufferItems)
	}
	if c.MaxOutputItems <= 0 {
		return fmt.Errorf("%w: max output items %d", ErrInvalidConfig, c.MaxOutputItems)
	}
	if c.Backoff <= 0 {
		return fmt.Errorf("%w: backoff %v", ErrInvalidConfig, c.Backoff)
	}
	if _, err := c.storage(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) storage() (buffer.Storage, error) {
	if c.BufferStorage == "" {
		return buffer.Auto, nil
	}
	return buffer.ParseStorage(c.BufferStorage)
}
