/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Configuration for the automaton tools. Values come from defaults, an optional
YAML file, AUTOMATON_ prefixed environment variables and command line flags bound into
viper, in increasing order of precedence.
*/

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (AUTOMATON_SESSION_ROLE, ...)
const EnvPrefix = "AUTOMATON"

// Config is the complete tool configuration
type Config struct {
	Model   string        `mapstructure:"model"`
	Session SessionConfig `mapstructure:"session"`
	Channel ChannelConfig `mapstructure:"channel"`
	Fuzz    FuzzConfig    `mapstructure:"fuzz"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SessionConfig controls the automaton walk
type SessionConfig struct {
	Role           string        `mapstructure:"role"`
	Seed           int64         `mapstructure:"seed"`
	MaxSteps       int           `mapstructure:"max_steps"`
	Timeout        time.Duration `mapstructure:"timeout"`         // Whole session, 0 = none
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"` // Idle window per receive, 0 = none
}

// ChannelConfig selects and configures the transport
type ChannelConfig struct {
	Type         string        `mapstructure:"type"` // tcp, websocket, pcap
	Mode         string        `mapstructure:"mode"` // dial, listen
	Address      string        `mapstructure:"address"`
	URL          string        `mapstructure:"url"`
	PcapPath     string        `mapstructure:"pcap_path"`
	PeerPort     int           `mapstructure:"peer_port"`
	BufferSize   int           `mapstructure:"buffer_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	Framing      string        `mapstructure:"framing"` // none, length, delimiter (tcp only)
	LengthWidth  int           `mapstructure:"length_width"`
	Delimiter    string        `mapstructure:"delimiter"`
}

// FuzzConfig enables mutation of emitted payloads
type FuzzConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Strategy     string  `mapstructure:"strategy"` // bitflip, substitute, arithmetic, composite
	MutationRate float64 `mapstructure:"mutation_rate"`
	ChainLength  int     `mapstructure:"chain_length"`
	Structured   bool    `mapstructure:"structured"` // Mutate variable fields only and keep framing intact
}

// StoreConfig locates the session database
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig exposes prometheus metrics
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig mirrors logging.LoggerConfig
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Dir      string `mapstructure:"dir"`
	MaxFiles int    `mapstructure:"max_files"`
	Caller   bool   `mapstructure:"caller"`
	Colors   bool   `mapstructure:"colors"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("session.role", "client")
	v.SetDefault("session.seed", 0)
	v.SetDefault("session.max_steps", 0)
	v.SetDefault("session.timeout", time.Duration(0))
	v.SetDefault("session.receive_timeout", 5*time.Second)

	v.SetDefault("channel.type", "tcp")
	v.SetDefault("channel.mode", "dial")
	v.SetDefault("channel.address", "127.0.0.1:9000")
	v.SetDefault("channel.url", "")
	v.SetDefault("channel.pcap_path", "")
	v.SetDefault("channel.peer_port", 0)
	v.SetDefault("channel.buffer_size", 64*1024)
	v.SetDefault("channel.poll_interval", 100*time.Millisecond)
	v.SetDefault("channel.dial_timeout", 10*time.Second)
	v.SetDefault("channel.framing", "none")
	v.SetDefault("channel.length_width", 2)
	v.SetDefault("channel.delimiter", "\r\n")

	v.SetDefault("fuzz.enabled", false)
	v.SetDefault("fuzz.strategy", "composite")
	v.SetDefault("fuzz.mutation_rate", 0.01)
	v.SetDefault("fuzz.chain_length", 3)
	v.SetDefault("fuzz.structured", false)

	v.SetDefault("store.path", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9464")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "custom")
	v.SetDefault("logging.dir", "")
	v.SetDefault("logging.max_files", 10)
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.colors", true)
}

// Load reads the configuration from v. When file is not empty it is read first.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects inconsistent values
func (c *Config) Validate() error {
	switch strings.ToLower(c.Session.Role) {
	case "client", "master", "server":
	default:
		return fmt.Errorf("session.role must be client or master, got %q", c.Session.Role)
	}
	if c.Session.MaxSteps < 0 {
		return fmt.Errorf("session.max_steps must not be negative")
	}
	if c.Session.Timeout < 0 || c.Session.ReceiveTimeout < 0 {
		return fmt.Errorf("session timeouts must not be negative")
	}

	switch c.Channel.Type {
	case "tcp":
		if c.Channel.Address == "" {
			return fmt.Errorf("channel.address is required for tcp")
		}
		if c.Channel.Mode != "dial" && c.Channel.Mode != "listen" {
			return fmt.Errorf("channel.mode must be dial or listen, got %q", c.Channel.Mode)
		}
		switch c.Channel.Framing {
		case "", "none":
		case "length":
			if w := c.Channel.LengthWidth; w != 1 && w != 2 && w != 4 {
				return fmt.Errorf("channel.length_width must be 1, 2 or 4, got %d", w)
			}
		case "delimiter":
			if c.Channel.Delimiter == "" {
				return fmt.Errorf("channel.delimiter is required for delimiter framing")
			}
		default:
			return fmt.Errorf("channel.framing must be none, length or delimiter, got %q", c.Channel.Framing)
		}
	case "websocket":
		if c.Channel.URL == "" {
			return fmt.Errorf("channel.url is required for websocket")
		}
	case "pcap":
		if c.Channel.PcapPath == "" {
			return fmt.Errorf("channel.pcap_path is required for pcap")
		}
	default:
		return fmt.Errorf("unsupported channel type: %s", c.Channel.Type)
	}
	if c.Channel.BufferSize <= 0 {
		return fmt.Errorf("channel.buffer_size must be positive")
	}
	if c.Channel.PollInterval <= 0 {
		return fmt.Errorf("channel.poll_interval must be positive")
	}

	if c.Fuzz.Enabled {
		if c.Fuzz.MutationRate <= 0 || c.Fuzz.MutationRate > 1 {
			return fmt.Errorf("fuzz.mutation_rate must be in (0, 1]")
		}
		if c.Fuzz.ChainLength <= 0 {
			return fmt.Errorf("fuzz.chain_length must be positive")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	return nil
}
