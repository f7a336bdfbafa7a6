// Package config loads the cache daemon's settings the way the rest
// of this codebase's configuration-capable programs do: layered
// defaults, a config file, and environment overrides, merged through
// hugorm and decoded into a typed Config. A subset of fields can be
// changed on the fly by a Watcher; resizing fields (Capacity, SectorSize)
// are read once at startup and never revisited.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"github.com/wilbur-shi/bufcache/hugorm"
)

// DeviceConfig describes the block device the cache sits in front of.
type DeviceConfig struct {
	// Path to the backing file. Empty means an in-memory device (tests
	// and local experimentation only).
	Path string

	SectorSize int `mapstructure:"sector_size"`
	Capacity   int
}

// LogConfig configures the structured logger. Level is one of the
// syslog priority names (e.g. "info", "debug", "warning").
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// StatsConfig configures statcache's reporting.
type StatsConfig struct {
	StatsdAddr    string `mapstructure:"statsd_addr"`
	StatsdPrefix  string `mapstructure:"statsd_prefix"`
	FlushInterval string `mapstructure:"flush_interval"`
}

// NetworkConfig configures the optional network block device front
// end.
type NetworkConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Config is the complete, typed configuration for a cache daemon
// process.
type Config struct {
	Device  DeviceConfig
	Log     LogConfig
	Stats   StatsConfig
	Network NetworkConfig

	// CtrlSocketPath, if non-empty, runs the runtime control socket at
	// this path.
	CtrlSocketPath string `mapstructure:"ctrl_socket_path"`

	// AdminAddr, if non-empty, serves the admin HTTP endpoints here.
	AdminAddr string `mapstructure:"admin_addr"`
}

func defaults() *hugorm.Hugorm {
	h := hugorm.New(hugorm.EnvPrefix("BUFCACHED"))
	h.SetDefault("device.sector_size", 512)
	h.SetDefault("device.capacity", 64)
	h.SetDefault("log.level", "info")
	h.SetDefault("log.format", "text")
	h.SetDefault("stats.flush_interval", "10s")
	h.AutomaticEnv()
	h.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return h
}

// Load reads defaults, then (if path is non-empty) a config file in
// the format implied by its extension, then environment overrides,
// and decodes the result into a Config.
func Load(path string) (*Config, error) {
	h := defaults()

	if path != "" {
		h.AddConfigFile(formatOf(path), path)
		if err := h.LoadConfig(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var c Config
	if err := decodeInto(h, &c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &c, nil
}

// LoadWithFlags is Load, plus command-line flags bound over a pflag
// FlagSet (highest priority, above the config file and environment —
// hugorm's documented precedence order). Pass the FlagSet the caller
// already parsed its program's flags into; each flag's long name is
// used as its config key (e.g. --device.path sets device.path).
func LoadWithFlags(path string, flags *pflag.FlagSet) (*Config, error) {
	h := defaults()

	if flags != nil {
		if err := h.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path != "" {
		h.AddConfigFile(formatOf(path), path)
		if err := h.LoadConfig(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var c Config
	if err := decodeInto(h, &c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &c, nil
}

func decodeInto(h *hugorm.Hugorm, out *Config) error {
	dc := &mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	}
	dec, err := mapstructure.NewDecoder(dc)
	if err != nil {
		return err
	}
	return dec.Decode(h.Config())
}

func formatOf(path string) string {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".json"):
		return "json"
	case strings.HasSuffix(path, ".toml"):
		return "toml"
	default:
		return "toml"
	}
}
