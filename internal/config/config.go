package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	// HTTP server configuration
	Server ServerConfig `toml:"server"`

	// Scheduler core configuration
	Sched SchedConfig `toml:"sched"`

	// Simulator configuration
	Sim SimConfig `toml:"sim"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen address (default: "localhost:9190")
	ListenAddress string `toml:"listen_address"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path"`

	// Enable pprof endpoint for debugging (default: false)
	PprofEnabled bool `toml:"pprof_enabled"`
}

// SchedConfig contains the global time-slicing settings applied at boot.
// Both slice values can also be changed at runtime through the core API.
type SchedConfig struct {
	// Number of simulated CPUs (default: 2)
	CPUs int `toml:"cpus"`

	// Default slice duration in ticks; <= 0 disables global slicing
	// (default: 100)
	SliceTicks int64 `toml:"slice_ticks"`

	// Priority ceiling. Threads more urgent than the ceiling (lower
	// priority number) are exempt from slicing (default: 0)
	CeilingPriority int32 `toml:"ceiling_priority"`
}

// SimConfig contains the workload simulator settings.
type SimConfig struct {
	// Scenario to run: "roundrobin" or "perthread" (default: "roundrobin")
	Scenario string `toml:"scenario"`

	// Number of worker threads (default: 3)
	Threads int `toml:"threads"`

	// Priority assigned to every worker thread (default: 5)
	Priority int32 `toml:"priority"`

	// Busy work per thread, in ticks (default: 2000)
	WorkTicks int64 `toml:"work_ticks"`

	// Per-thread slice durations for the "perthread" scenario. Cycled
	// over the workers (default: [50, 100, 150])
	OverrideTicks []int64 `toml:"override_ticks"`

	// Virtual tick rate driving the simulated CPUs (default: 1000)
	TickHz int `toml:"tick_hz"`
}

// LoggingConfig contains the complete logging configuration.
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`
}

// LogDefaults contains default logger settings.
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration.
type LogOutput struct {
	// Output type: "console" or "file"
	Type string `toml:"type"`

	// Enable this output (default: true)
	Enabled bool `toml:"enabled"`

	// Configuration specific to the output type
	Console *ConsoleConfig `toml:"console,omitempty"`
	File    *FileConfig    `toml:"file,omitempty"`
}

// ConsoleConfig contains console/terminal output settings.
type ConsoleConfig struct {
	// Use fast JSON output instead of the formatted writer (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false: "auto" or "logfmt" (default: "auto")
	Format string `toml:"format"`

	// Enable colored output (default: true)
	ColorOutput bool `toml:"color_output"`

	// Quote string values (default: true)
	QuoteString bool `toml:"quote_string"`

	// Output destination: "stderr" or "stdout" (default: "stderr")
	Writer string `toml:"writer"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// FileConfig contains file output settings.
type FileConfig struct {
	// Log file path (required)
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize int64 `toml:"max_size"`

	// Maximum number of old log files to keep (default: 7)
	MaxBackups int `toml:"max_backups"`

	// Time format for rotated filenames (default: "2006-01-02T15-04-05")
	TimeFormat string `toml:"time_format"`

	// Use local time for rotation timestamps (default: true)
	LocalTime bool `toml:"local_time"`

	// Create directory if it doesn't exist (default: true)
	EnsureFolder bool `toml:"ensure_folder"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: "localhost:9190",
			MetricsPath:   "/metrics",
			PprofEnabled:  false,
		},
		Sched: SchedConfig{
			CPUs:            2,
			SliceTicks:      100,
			CeilingPriority: 0,
		},
		Sim: SimConfig{
			Scenario:      "roundrobin",
			Threads:       3,
			Priority:      5,
			WorkTicks:     2000,
			OverrideTicks: []int64{50, 100, 150},
			TickHz:        1000,
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeField:    "time",
				TimeFormat:   "",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						FastIO:      false,
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
						Async:       false,
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/ticksched.log",
						MaxSize:      10, // 10MB
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// GenerateExampleConfig writes a TOML configuration file with default values.
func GenerateExampleConfig(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# ticksched example configuration
# Copy this file to create your own configuration and modify as needed.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := toml.NewEncoder(file).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *AppConfig) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if c.Server.MetricsPath == "" {
		return fmt.Errorf("server.metrics_path cannot be empty")
	}

	if c.Sched.CPUs < 1 {
		return fmt.Errorf("sched.cpus must be at least 1, got %d", c.Sched.CPUs)
	}

	switch c.Sim.Scenario {
	case "roundrobin", "perthread":
	default:
		return fmt.Errorf("sim.scenario must be \"roundrobin\" or \"perthread\", got %q", c.Sim.Scenario)
	}
	if c.Sim.Threads < 1 {
		return fmt.Errorf("sim.threads must be at least 1, got %d", c.Sim.Threads)
	}
	if c.Sim.TickHz < 1 {
		return fmt.Errorf("sim.tick_hz must be at least 1, got %d", c.Sim.TickHz)
	}
	if c.Sim.Scenario == "perthread" && len(c.Sim.OverrideTicks) == 0 {
		return fmt.Errorf("sim.override_ticks cannot be empty for the perthread scenario")
	}

	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	return nil
}

// Flags holds the command-line flags.
type Flags struct {
	ListenAddress  string
	MetricsPath    string
	ConfigPath     string
	GenerateConfig string
}

// NewConfig creates the configuration by parsing flags and loading the
// config file. A nil config with a nil error signals a clean exit
// (generate-config mode).
func NewConfig() (*AppConfig, error) {
	flags := &Flags{}

	flag.StringVar(&flags.ListenAddress,
		"web.listen-address",
		"localhost:9190",
		"Address to listen on for web interface and telemetry.")
	flag.StringVar(&flags.MetricsPath,
		"web.telemetry-path",
		"/metrics",
		"Path under which to expose metrics.")
	flag.StringVar(&flags.ConfigPath,
		"config",
		"",
		"Path to configuration file (optional).")
	flag.StringVar(&flags.GenerateConfig,
		"generate-config",
		"",
		"Generate example config file to specified path and exit.")
	flag.Parse()

	if flags.GenerateConfig != "" {
		if err := GenerateExampleConfig(flags.GenerateConfig); err != nil {
			return nil, fmt.Errorf("error generating example config: %w", err)
		}
		fmt.Printf("Generated %s successfully\n", flags.GenerateConfig)
		return nil, nil
	}

	config := DefaultConfig()

	if flags.ConfigPath != "" {
		var err error
		config, err = LoadConfig(flags.ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	if isFlagPassed("web.listen-address") {
		config.Server.ListenAddress = flags.ListenAddress
	}
	if isFlagPassed("web.telemetry-path") {
		config.Server.MetricsPath = flags.MetricsPath
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// isFlagPassed checks if a flag was explicitly set on the command line.
func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
