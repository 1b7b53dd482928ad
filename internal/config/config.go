// Package config holds the settings of a provisioning run: tool paths,
// the probe endpoint, images and timeouts.
//
// A Config is built once at startup from defaults, an optional YAML file
// and the BLACKMAGIC, ORBTRACE and GDB environment variables, and is then
// passed explicitly to the components that need it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables that override tool paths.
const (
	EnvBlackmagic = "BLACKMAGIC"
	EnvOrbtrace   = "ORBTRACE"
	EnvGDB        = "GDB"
)

// Config configures a provisioning run.
type Config struct {
	// Blackmagic is the Black Magic Debug App executable.
	Blackmagic string `yaml:"blackmagic"`
	// BlackmagicArgs are passed to the daemon.
	BlackmagicArgs []string `yaml:"blackmagic_args"`
	// BlackmagicLog receives the daemon's output.
	BlackmagicLog string `yaml:"blackmagic_log"`
	// StartupGrace is how long the daemon must survive after launch.
	StartupGrace time.Duration `yaml:"startup_grace"`

	// Orbtrace is the power-control executable.
	Orbtrace string `yaml:"orbtrace"`
	// PowerRail and PowerVoltage select the switched supply.
	PowerRail    string `yaml:"power_rail"`
	PowerVoltage string `yaml:"power_voltage"`
	// PowerSettle is waited after each power transition.
	PowerSettle time.Duration `yaml:"power_settle"`

	// GDB is the debugger executable, run with GDBArgs.
	GDB     string   `yaml:"gdb"`
	GDBArgs []string `yaml:"gdb_args"`

	// Endpoint is the daemon's GDB server address.
	Endpoint string `yaml:"endpoint"`

	// CommandTimeout bounds every MI command exchange.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// Firmware and LockImage are loaded into the debugger by path.
	Firmware  string `yaml:"firmware"`
	LockImage string `yaml:"lock_image"`

	// MinGDBVersion and MinProbeVersion are optional semver constraints,
	// e.g. ">= 12.1".
	MinGDBVersion   string `yaml:"min_gdb_version"`
	MinProbeVersion string `yaml:"min_probe_version"`

	// Workflow is a workflow file replacing the built-in lifecycle.
	Workflow string `yaml:"workflow"`
	// Repeat runs the workflow this many times in one session.
	Repeat int `yaml:"repeat"`

	// History is the SQLite run history database. Empty disables history.
	History string `yaml:"history"`
	// ProtocolLog is the CBOR protocol log file. Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	// Format is the report format: text, json or junit.
	Format string `yaml:"format"`
	// Verbose adds step details to text reports.
	Verbose bool `yaml:"verbose"`
	// LogLevel is the operational log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the settings of the reference bench setup.
func Default() Config {
	return Config{
		Blackmagic:     "blackmagic",
		BlackmagicArgs: []string{"-v", "1"},
		BlackmagicLog:  "bmda_log.txt",
		StartupGrace:   100 * time.Millisecond,
		Orbtrace:       "orbtrace",
		PowerRail:      "vtpwr",
		PowerVoltage:   "5",
		PowerSettle:    100 * time.Millisecond,
		GDB:            "arm-none-eabi-gdb",
		GDBArgs:        []string{"--interpreter=mi4"},
		Endpoint:       "localhost:2000",
		CommandTimeout: 30 * time.Second,
		Firmware:       "nrf54l_firmware.elf",
		LockImage:      "nrf54l_uicr_approtect.hex",
		Repeat:         1,
		Format:         "text",
		LogLevel:       "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any)
// and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := cfg.Overlay(data); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

// Overlay overlays data on c. Unknown keys are rejected.
func (c *Config) Overlay(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides tool paths from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBlackmagic); ok && v != "" {
		c.Blackmagic = v
	}
	if v, ok := lookup(EnvOrbtrace); ok && v != "" {
		c.Orbtrace = v
	}
	if v, ok := lookup(EnvGDB); ok && v != "" {
		c.GDB = v
	}
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if c.Blackmagic == "" {
		errs = append(errs, errors.New("blackmagic path is empty"))
	}
	if c.Orbtrace == "" {
		errs = append(errs, errors.New("orbtrace path is empty"))
	}
	if c.GDB == "" {
		errs = append(errs, errors.New("gdb path is empty"))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is empty"))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout))
	}
	if c.Repeat < 1 {
		errs = append(errs, fmt.Errorf("repeat must be at least 1, got %d", c.Repeat))
	}
	for name, constraint := range map[string]string{
		"min_gdb_version":   c.MinGDBVersion,
		"min_probe_version": c.MinProbeVersion,
	} {
		if constraint == "" {
			continue
		}
		if _, err := semver.NewConstraint(constraint); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", name, constraint, err))
		}
	}
	switch c.Format {
	case "text", "json", "junit":
	default:
		errs = append(errs, fmt.Errorf("unknown format %q", c.Format))
	}
	return errors.Join(errs...)
}
