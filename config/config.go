package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"gdaytreva/client"
	"gdaytreva/program"
)

const (
	// DefaultConfigFile is looked up in the working directory when no path is given
	DefaultConfigFile = "config.toml"
)

// Config is the application configuration
type Config struct {
	Debug bool `toml:"debug"`
	Log   struct {
		Filename string `toml:"filename"`
	} `toml:"log"`
	Device struct {
		Host          string `toml:"host"`
		ResolveMDNS   bool   `toml:"resolve_mdns"`
		ConfigTimeout string `toml:"config_timeout"` // e.g. "3s"
	} `toml:"device"`
	Session struct {
		HeartbeatTimeout  string `toml:"heartbeat_timeout"`
		HeartbeatInterval string `toml:"heartbeat_interval"`
		CountdownInterval string `toml:"countdown_interval"`
		ReconnectInitial  string `toml:"reconnect_initial"`
		ReconnectMax      string `toml:"reconnect_max"`
		ProgramDiscovery  string `toml:"program_discovery"` // cache, poll or auto
		DiscoveryFallback string `toml:"discovery_fallback"`
	} `toml:"session"`
	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
	Console struct {
		Enabled bool `toml:"enabled"`
	} `toml:"console"`
}

// NewConfig returns the defaults
func NewConfig() *Config {
	cfg := &Config{
		Debug: false,
	}
	cfg.Log.Filename = "gdaytreva.log"
	cfg.Device.Host = "gday.local"
	cfg.Device.ResolveMDNS = true
	cfg.Device.ConfigTimeout = "3s"
	cfg.Session.HeartbeatTimeout = "15s"
	cfg.Session.HeartbeatInterval = "5s"
	cfg.Session.CountdownInterval = "1s"
	cfg.Session.ReconnectInitial = "1s"
	cfg.Session.ReconnectMax = "30s"
	cfg.Session.ProgramDiscovery = string(program.DiscoveryAuto)
	cfg.Session.DiscoveryFallback = "3s"
	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "localhost:9464"
	cfg.Console.Enabled = true
	return cfg
}

// LoadConfig loads the configuration in this order of precedence:
// 1. the file at configPath, when given
// 2. DefaultConfigFile in the working directory, when present
// 3. the defaults
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	filePath := configPath
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		} else {
			return config, nil
		}
	}

	if _, err := toml.DecodeFile(filePath, config); err != nil {
		return nil, fmt.Errorf("error loading %s: %w", filePath, err)
	}
	return config, nil
}

// ApplyCommandLineArgs overrides settings with flags that were given explicitly
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	if args.HostSpecified {
		c.Device.Host = args.Host
	}
	if args.ResolveMDNSSpecified {
		c.Device.ResolveMDNS = args.ResolveMDNS
	}
	if args.ProgramDiscoverySpecified {
		c.Session.ProgramDiscovery = args.ProgramDiscovery
	}
	if args.MetricsEnabledSpecified {
		c.Metrics.Enabled = args.MetricsEnabled
	}
	if args.MetricsAddrSpecified {
		c.Metrics.Addr = args.MetricsAddr
	}
	if args.ConsoleEnabledSpecified {
		c.Console.Enabled = args.ConsoleEnabled
	}
}

// SessionConfig converts the device and session sections into client settings
func (c *Config) SessionConfig() (client.Config, error) {
	mode, err := program.ParseDiscoveryMode(c.Session.ProgramDiscovery)
	if err != nil {
		return client.Config{}, err
	}
	cfg := client.Config{
		Host:        c.Device.Host,
		ResolveMDNS: c.Device.ResolveMDNS,
		Discovery:   mode,
	}
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"device.config_timeout", c.Device.ConfigTimeout, &cfg.ConfigTimeout},
		{"session.heartbeat_timeout", c.Session.HeartbeatTimeout, &cfg.HeartbeatTimeout},
		{"session.heartbeat_interval", c.Session.HeartbeatInterval, &cfg.HeartbeatInterval},
		{"session.countdown_interval", c.Session.CountdownInterval, &cfg.CountdownInterval},
		{"session.reconnect_initial", c.Session.ReconnectInitial, &cfg.ReconnectInitial},
		{"session.reconnect_max", c.Session.ReconnectMax, &cfg.ReconnectMax},
		{"session.discovery_fallback", c.Session.DiscoveryFallback, &cfg.DiscoveryFallback},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return client.Config{}, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		if v < 0 {
			return client.Config{}, fmt.Errorf("invalid %s %q: must not be negative", d.name, d.value)
		}
		*d.dst = v
	}
	if c.Device.Host == "" {
		return client.Config{}, fmt.Errorf("device.host must be set")
	}
	return cfg, nil
}

// CommandLineArgs holds flag values and whether each was given
type CommandLineArgs struct {
	ConfigFile      string
	ConfigSpecified bool

	Debug          bool
	DebugSpecified bool

	LogFilename          string
	LogFilenameSpecified bool

	Host                 string
	HostSpecified        bool
	ResolveMDNS          bool
	ResolveMDNSSpecified bool

	ProgramDiscovery          string
	ProgramDiscoverySpecified bool

	MetricsEnabled          bool
	MetricsEnabledSpecified bool
	MetricsAddr             string
	MetricsAddrSpecified    bool

	ConsoleEnabled          bool
	ConsoleEnabledSpecified bool
}

// ParseCommandLineArgs parses the command line (without the program name)
func ParseCommandLineArgs(arguments []string) (CommandLineArgs, error) {
	var args CommandLineArgs

	fs := flag.NewFlagSet("gdaytreva", flag.ContinueOnError)
	fs.StringVar(&args.ConfigFile, "config", "", "path of the TOML configuration file")
	fs.BoolVar(&args.Debug, "debug", false, "enable debug logging")
	fs.StringVar(&args.LogFilename, "log", "gdaytreva.log", "log file name")
	fs.StringVar(&args.Host, "host", "gday.local", "controller host name or address")
	fs.BoolVar(&args.ResolveMDNS, "resolve-mdns", true, "look up the controller's mDNS name in its config.json")
	fs.StringVar(&args.ProgramDiscovery, "program-discovery", "auto", "how programs are requested: cache, poll or auto")
	fs.BoolVar(&args.MetricsEnabled, "metrics", false, "serve Prometheus metrics")
	fs.StringVar(&args.MetricsAddr, "metrics-addr", "localhost:9464", "listen address of the metrics endpoint")
	fs.BoolVar(&args.ConsoleEnabled, "console", true, "run the interactive console")

	if err := fs.Parse(arguments); err != nil {
		return CommandLineArgs{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			args.ConfigSpecified = true
		case "debug":
			args.DebugSpecified = true
		case "log":
			args.LogFilenameSpecified = true
		case "host":
			args.HostSpecified = true
		case "resolve-mdns":
			args.ResolveMDNSSpecified = true
		case "program-discovery":
			args.ProgramDiscoverySpecified = true
		case "metrics":
			args.MetricsEnabledSpecified = true
		case "metrics-addr":
			args.MetricsAddrSpecified = true
		case "console":
			args.ConsoleEnabledSpecified = true
		}
	})
	return args, nil
}
