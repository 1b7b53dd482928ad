// Command nrf54l-autotest runs the nRF54L lock-lifecycle acceptance test
// against a Black Magic probe.
//
// It powers the target through orbtrace, starts the Black Magic Debug App
// and GDB, and walks the target through locked and unlocked states, checking
// the access-port topology and memory map at every checkpoint.
//
// Usage:
//
//	nrf54l-autotest [flags]
//
// Flags:
//
//	-config string        YAML settings file
//	-workflow string      Workflow file replacing the built-in lifecycle
//	-firmware string      Firmware image (default nrf54l_firmware.elf)
//	-lock-image string    APPROTECT image (default nrf54l_uicr_approtect.hex)
//	-endpoint string      Probe GDB server address (default localhost:2000)
//	-repeat int           Run the workflow N times in one session
//	-history string       SQLite run history database
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-format string        Report format: text, json, junit
//	-verbose              List every step in text reports
//	-log-level string     Operational log level (debug, info, warn, error)
//	-simulate             Run against a simulated probe and target
//	-timeout duration     Overall timeout (default 10m per repeat)
//
// Tool paths default to blackmagic, orbtrace and arm-none-eabi-gdb and can
// be overridden with the BLACKMAGIC, ORBTRACE and GDB environment variables.
//
// Examples:
//
//	# Run the lifecycle once
//	nrf54l-autotest
//
//	# Run it five times, keep history and a protocol capture
//	nrf54l-autotest -repeat 5 -history runs.db -protocol-log bench.milog
//
//	# CI: JUnit report against the simulator
//	nrf54l-autotest -simulate -format junit > report.xml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/zyp/gdb-autotest/internal/config"
	"github.com/zyp/gdb-autotest/internal/history"
	"github.com/zyp/gdb-autotest/internal/testharness/mock"
	"github.com/zyp/gdb-autotest/internal/testharness/runner"
	plog "github.com/zyp/gdb-autotest/pkg/log"
)

var (
	configFile  = flag.String("config", "", "YAML settings file")
	workflow    = flag.String("workflow", "", "Workflow file replacing the built-in lifecycle")
	firmware    = flag.String("firmware", "", "Firmware image")
	lockImage   = flag.String("lock-image", "", "APPROTECT image")
	endpoint    = flag.String("endpoint", "", "Probe GDB server address")
	repeat      = flag.Int("repeat", 0, "Run the workflow N times in one session")
	historyDB   = flag.String("history", "", "SQLite run history database")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	format      = flag.String("format", "", "Report format: text, json, junit")
	verbose     = flag.Bool("verbose", false, "List every step in text reports")
	logLevel    = flag.String("log-level", "", "Operational log level (debug, info, warn, error)")
	simulate    = flag.Bool("simulate", false, "Run against a simulated probe and target")
	timeout     = flag.Duration("timeout", 0, "Overall timeout (default 10m per repeat)")
)

// runTimeout bounds a single workflow run.
const runTimeout = 10 * time.Minute

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	settings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	applyFlags(&settings)
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: log level: %v\n", err)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := &runner.Config{
		Settings: settings,
		Output:   os.Stdout,
		Logger:   logger,
	}

	var sinks []plog.Logger
	if settings.ProtocolLog != "" {
		fileLogger, err := plog.NewFileLogger(settings.ProtocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create protocol logger: %v\n", err)
			return 1
		}
		defer fileLogger.Close()
		sinks = append(sinks, fileLogger)
		logger.Info("protocol logging", "path", settings.ProtocolLog)
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, plog.NewSlogAdapter(logger))
	}
	if len(sinks) > 0 {
		cfg.ProtocolLogger = plog.NewMultiLogger(sinks...)
	}

	if settings.History != "" {
		store, err := history.Open(settings.History)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer store.Close()
		cfg.History = store
	}

	if *simulate {
		target := mock.NewTarget()
		cfg.Power = target
		cfg.Connect = runner.SimulatorConnector(mock.NewGDB(target), cfg.ProtocolLogger)
		logger.Info("running against simulator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout(*timeout, settings.Repeat))
	defer cancel()

	r := runner.New(cfg)
	logger.Debug("session", "id", r.SessionID(), "endpoint", settings.Endpoint)

	result, err := r.Run(ctx)
	if err != nil {
		var div *runner.DivergenceError
		switch {
		case errors.As(err, &div):
			logger.Error("runs are not idempotent", "error", err)
		default:
			logger.Error("run failed", "category", runner.Category(err), "error", err)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if result.FailCount > 0 {
		return 1
	}
	return 0
}

// applyFlags overlays the flags given on the command line on s.
func applyFlags(s *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workflow":
			s.Workflow = *workflow
		case "firmware":
			s.Firmware = *firmware
		case "lock-image":
			s.LockImage = *lockImage
		case "endpoint":
			s.Endpoint = *endpoint
		case "repeat":
			s.Repeat = *repeat
		case "history":
			s.History = *historyDB
		case "protocol-log":
			s.ProtocolLog = *protocolLog
		case "format":
			s.Format = *format
		case "verbose":
			s.Verbose = *verbose
		case "log-level":
			s.LogLevel = *logLevel
		}
	})
}

// sessionTimeout returns the overall deadline: explicit when positive,
// otherwise one run timeout per repetition.
func sessionTimeout(explicit time.Duration, repeat int) time.Duration {
	if explicit > 0 {
		return explicit
	}
	return runTimeout * time.Duration(max(repeat, 1))
}
