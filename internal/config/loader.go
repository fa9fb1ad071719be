package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix of every setting, for example
// TPLANNER_SIMULATION_LIFECYCLE or TPLANNER_DATABASE_POSTGRES_HOST.
const envPrefix = "TPLANNER"

// Sentinel errors returned (wrapped) by Load.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigParseError   = errors.New("config parse error")
	ErrConfigValidation   = errors.New("config validation failed")
)

type loadOptions struct {
	path string
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithConfigPath points Load at a YAML file. Without it only the environment
// and defaults are used.
func WithConfigPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, val := range viperDefaults() {
		v.SetDefault(key, val)
	}
	return v
}

// Load reads the optional YAML file, merges TPLANNER_* overrides, applies
// defaults and validates the result.
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	v := newViper()
	if o.path != "" {
		if _, err := os.Stat(o.path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, o.path)
		}
		v.SetConfigFile(o.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, o.path, err)
		}
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from TPLANNER_* variables and defaults only.
func LoadFromEnv() (*Config, error) {
	return Load()
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return cfg, nil
}

// Watch re-reads path whenever it changes on disk and hands every valid
// result to onChange. Invalid edits are reported to onError and otherwise
// ignored so the running process keeps its last good configuration.
// Only settings that are safe to change at runtime (log level, simulation
// defaults) should be applied by the callback.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParseError, path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error. main() only.
func MustLoad(opts ...LoadOption) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
