// Command mi-shell is an interactive console for a Black Magic probe.
//
// It starts the Black Magic Debug App and GDB the same way nrf54l-autotest
// does and accepts probe commands (scan, erase, mem, ...) as well as raw MI
// commands at a prompt. Useful for bench bring-up.
//
// Usage:
//
//	mi-shell [flags]
//
// Flags:
//
//	-config string        YAML settings file
//	-endpoint string      Probe GDB server address
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-log-level string     Operational log level (default warn)
//	-simulate             Use a simulated probe and target
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"

	"github.com/zyp/gdb-autotest/cmd/mi-shell/interactive"
	"github.com/zyp/gdb-autotest/internal/adapter"
	"github.com/zyp/gdb-autotest/internal/config"
	"github.com/zyp/gdb-autotest/internal/testharness/mock"
	"github.com/zyp/gdb-autotest/internal/testharness/runner"
	"github.com/zyp/gdb-autotest/pkg/bmp"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	plog "github.com/zyp/gdb-autotest/pkg/log"
)

var (
	configFile  = flag.String("config", "", "YAML settings file")
	endpoint    = flag.String("endpoint", "", "Probe GDB server address")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	logLevel    = flag.String("log-level", "warn", "Operational log level (debug, info, warn, error)")
	simulate    = flag.Bool("simulate", false, "Use a simulated probe and target")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *endpoint != "" {
		settings.Endpoint = *endpoint
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var sinks []plog.Logger
	if *protocolLog != "" {
		fl, err := plog.NewFileLogger(*protocolLog)
		if err != nil {
			return fmt.Errorf("failed to create protocol logger: %w", err)
		}
		defer fl.Close()
		sinks = append(sinks, fl)
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, plog.NewSlogAdapter(logger))
	}
	protocolLogger := plog.Logger(plog.NewMultiLogger(sinks...))

	var (
		power   adapter.PowerSwitch
		connect runner.Connector
	)
	if *simulate {
		target := mock.NewTarget()
		power = target
		connect = runner.SimulatorConnector(mock.NewGDB(target), protocolLogger)
	} else {
		power = runner.OrbtraceSwitch(settings, logger, protocolLogger)
		connect = runner.ProcessConnector(settings, logger, protocolLogger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	link, err := connect(ctx, uuid.NewString())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer link.Close()

	hctx, cancel := context.WithTimeout(ctx, settings.CommandTimeout)
	defer cancel()
	client, err := gdb.New(hctx, link, gdb.WithLogger(logger))
	if err != nil {
		return err
	}
	probe, err := bmp.New(hctx, client, settings.Endpoint)
	if err != nil {
		return err
	}

	shell := interactive.New(probe, power, settings.CommandTimeout, os.Stdout)
	return shell.Run(ctx)
}
