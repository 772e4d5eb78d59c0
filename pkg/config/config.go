// Package config loads the YAML configuration of a node.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config sizes the stack's fixed pools and names its listen address and
// optional resumption store.
type Config struct {
	ListenAddress string `yaml:"listenAddress"`

	MaxExchangeContexts        int `yaml:"maxExchangeContexts"`
	MaxUnsolicitedHandlers     int `yaml:"maxUnsolicitedHandlers"`
	MaxSecureSessions          int `yaml:"maxSecureSessions"`
	MaxUnsecuredPeers          int `yaml:"maxUnsecuredPeers"`
	CASESessionResumeCacheSize int `yaml:"caseSessionResumeCacheSize"`
	MaxReadClients             int `yaml:"maxReadClients"`
	MaxReadHandlers            int `yaml:"maxReadHandlers"`

	// IMMessageTimeout bounds each wait for an Interaction Model response,
	// e.g. "5s".
	IMMessageTimeout time.Duration `yaml:"imMessageTimeout"`

	// ResumptionStorePath is a bbolt file persisting the CASE resumption
	// cache. Empty keeps the cache in memory.
	ResumptionStorePath string `yaml:"resumptionStorePath"`

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `yaml:"logLevel"`
}

// Default returns the configuration used for fields a file leaves out.
func Default() Config {
	return Config{
		ListenAddress:              "[::]:5540",
		MaxExchangeContexts:        16,
		MaxUnsolicitedHandlers:     8,
		MaxSecureSessions:          16,
		MaxUnsecuredPeers:          32,
		CASESessionResumeCacheSize: 4,
		MaxReadClients:             4,
		MaxReadHandlers:            4,
		IMMessageTimeout:           5 * time.Second,
		LogLevel:                   "info",
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects empty pools and unknown log levels.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"maxExchangeContexts", c.MaxExchangeContexts},
		{"maxUnsolicitedHandlers", c.MaxUnsolicitedHandlers},
		{"maxSecureSessions", c.MaxSecureSessions},
		{"maxUnsecuredPeers", c.MaxUnsecuredPeers},
		{"caseSessionResumeCacheSize", c.CASESessionResumeCacheSize},
		{"maxReadClients", c.MaxReadClients},
		{"maxReadHandlers", c.MaxReadHandlers},
	} {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, f.name)
		}
	}
	if c.IMMessageTimeout <= 0 {
		return fmt.Errorf("%w: imMessageTimeout must be positive", ErrInvalidConfig)
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("%w: listenAddress is empty", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// ParseLogLevel maps a level name to a pion log level. Empty means info.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	if s == "" {
		return logging.LogLevelInfo, nil
	}
	l, ok := logLevels[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
	return l, nil
}

// LoggerFactory returns a factory logging at the configured level. Scope
// levels can still be raised with the PION_LOG_* environment variables.
func (c *Config) LoggerFactory() *logging.DefaultLoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	if l, err := ParseLogLevel(c.LogLevel); err == nil {
		lf.DefaultLogLevel = l
	}
	return lf
}
