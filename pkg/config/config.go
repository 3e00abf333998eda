// Package config provides YAML-based configuration loading for unbase nodes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/transport"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the node/application
	AppName string `mapstructure:"app_name" yaml:"app_name"`

	// NodeID names the network in logs and metrics. Empty means derive it
	// from the identity key.
	NodeID string `mapstructure:"node_id" yaml:"node_id"`

	// CreateNewSystem starts a fresh system instead of joining via seeds.
	CreateNewSystem bool `mapstructure:"create_new_system" yaml:"create_new_system"`

	// SlabIDBase is the first slab id handed out by this node.
	SlabIDBase uint32 `mapstructure:"slab_id_base" yaml:"slab_id_base"`

	// Slabs is the number of slabs started with the node.
	Slabs int `mapstructure:"slabs" yaml:"slabs"`

	Log        LogConfig         `mapstructure:"log" yaml:"log"`
	Transports []TransportConfig `mapstructure:"transports" yaml:"transports"`
	Identity   IdentityConfig    `mapstructure:"identity" yaml:"identity"`
	Metrics    MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Net        NetConfig         `mapstructure:"net" yaml:"net"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs" yaml:"outputs"`
	// Name is attached to the root logger when set
	Name string `mapstructure:"name" yaml:"name,omitempty"`

	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// TransportConfig describes one transport and its endpoints.
// Example YAML:
//
//	transports:
//	  - kind: udp
//	    listen: [":51000"]
//	    seeds: ["10.0.0.2:51000"]
//	  - kind: quic
//	    listen: [":4433"]
//	  - kind: winpipe
//	    listen: ["\\\\.\\pipe\\unbase"]
//	  - kind: mem
//	    listen: ["node-a"]
//	  - kind: blackhole
type TransportConfig struct {
	Kind   string   `mapstructure:"kind" yaml:"kind"`
	Listen []string `mapstructure:"listen" yaml:"listen,omitempty"`
	// Seeds are addresses of this kind greeted with a hello on startup.
	Seeds []string `mapstructure:"seeds" yaml:"seeds,omitempty"`
}

// IdentityConfig describes the node key used to derive a node id.
type IdentityConfig struct {
	Alg            string `mapstructure:"alg" yaml:"alg"`                                           // ed25519
	PrivateKey     string `mapstructure:"private_key" yaml:"private_key,omitempty"`           // base64url(no padding) of raw private key bytes
	PrivateKeyFile string `mapstructure:"private_key_file" yaml:"private_key_file,omitempty"` // path to file containing base64 or raw bytes
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// NetConfig contains networking tuning options.
type NetConfig struct {
	SendTimeoutMS        int `mapstructure:"send_timeout_ms" yaml:"send_timeout_ms"`
	SeedBackoffInitialMS int `mapstructure:"seed_backoff_initial_ms" yaml:"seed_backoff_initial_ms"`
	SeedBackoffMaxMS     int `mapstructure:"seed_backoff_max_ms" yaml:"seed_backoff_max_ms"`
	SeedBackoffJitterMS  int `mapstructure:"seed_backoff_jitter_ms" yaml:"seed_backoff_jitter_ms"`
	// SeedAttempts bounds hello retries per seed (0 = until shutdown).
	SeedAttempts int `mapstructure:"seed_attempts" yaml:"seed_attempts"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName:    "unbase-node",
		SlabIDBase: 1,
		Slabs:      1,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/unbase.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transports: []TransportConfig{
			{Kind: "udp", Listen: []string{":51000"}},
		},
		Identity: IdentityConfig{Alg: "ed25519"},
		Metrics:  MetricsConfig{Listen: ":9102"},
		Net: NetConfig{
			SendTimeoutMS:        2000,
			SeedBackoffInitialMS: 500,
			SeedBackoffMaxMS:     30000,
			SeedBackoffJitterMS:  100,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix UNBASE and `.`/`-` are replaced with `_`.
// Example: UNBASE_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	_, cfg, err := load(path)
	return cfg, err
}

func load(path string) (*viper.Viper, *Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("UNBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("node_id", cfg.NodeID)
	v.SetDefault("create_new_system", cfg.CreateNewSystem)
	v.SetDefault("slab_id_base", cfg.SlabIDBase)
	v.SetDefault("slabs", cfg.Slabs)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.name", cfg.Log.Name)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transports", cfg.Transports)
	v.SetDefault("identity.alg", cfg.Identity.Alg)
	v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
	v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("net.send_timeout_ms", cfg.Net.SendTimeoutMS)
	v.SetDefault("net.seed_backoff_initial_ms", cfg.Net.SeedBackoffInitialMS)
	v.SetDefault("net.seed_backoff_max_ms", cfg.Net.SeedBackoffMaxMS)
	v.SetDefault("net.seed_backoff_jitter_ms", cfg.Net.SeedBackoffJitterMS)
	v.SetDefault("net.seed_attempts", cfg.Net.SeedAttempts)

	if path == "" {
		if envPath := os.Getenv("UNBASE_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `unbase`
		v.SetConfigName("unbase")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".unbase"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := decode(v, cfg); err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func decode(v *viper.Viper, cfg *Config) error {
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return cfg.validate()
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.SlabIDBase == 0 {
		c.SlabIDBase = 1
	}
	if c.Slabs < 0 {
		return fmt.Errorf("invalid slabs: %d", c.Slabs)
	}
	for i := range c.Transports {
		c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
		if transport.ParseKind(c.Transports[i].Kind) == transport.KindUnknown {
			return fmt.Errorf("invalid transports[%d].kind: %q", i, c.Transports[i].Kind)
		}
	}
	if c.Net.SendTimeoutMS <= 0 {
		c.Net.SendTimeoutMS = 2000
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Watch loads the config at path and calls onChange with the re-decoded
// config whenever the file changes. Invalid edits are logged and skipped.
func Watch(path string, onChange func(*Config, fsnotify.Event)) (*Config, error) {
	v, cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next := Default()
		if err := decode(v, next); err != nil {
			zap.L().Warn("ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		onChange(next, e)
	})
	v.WatchConfig()
	return cfg, nil
}
