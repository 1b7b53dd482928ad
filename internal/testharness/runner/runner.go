// Package runner executes provisioning workflows against a Black Magic
// probe: it binds the workflow actions to the debugger session and the
// target power switch, and owns the session lifecycle.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zyp/gdb-autotest/internal/adapter"
	"github.com/zyp/gdb-autotest/internal/config"
	"github.com/zyp/gdb-autotest/internal/history"
	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/internal/testharness/loader"
	"github.com/zyp/gdb-autotest/internal/testharness/reporter"
	"github.com/zyp/gdb-autotest/pkg/bmp"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	plog "github.com/zyp/gdb-autotest/pkg/log"
)

// ErrNotConnected is returned by probe actions outside a session.
var ErrNotConnected = errors.New("not connected to debugger")

// Config configures the runner.
type Config struct {
	// Settings are the bench settings.
	Settings config.Config

	// Output is where reports are written. Defaults to os.Stdout.
	Output io.Writer

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives MI traffic, adapter state changes and
	// checkpoint verdicts. Nil disables protocol logging.
	ProtocolLogger plog.Logger

	// Power switches target power. Defaults to orbtrace as configured in
	// Settings.
	Power adapter.PowerSwitch

	// Connect opens the debugger. Defaults to ProcessConnector.
	Connect Connector

	// History stores every run when set.
	History *history.Store

	// Workflows to run. Defaults to loading Settings.Workflow, or the
	// built-in lifecycle workflow when that is empty.
	Workflows []*loader.Workflow
}

// Runner executes workflows in one debugger session.
type Runner struct {
	config       *Config
	settings     config.Config
	engine       *engine.Engine
	engineConfig *engine.EngineConfig
	reporter     reporter.Reporter
	logger       *slog.Logger
	plog         plog.Logger
	power        adapter.PowerSwitch
	connect      Connector
	sessionID    string

	link   Link
	client *gdb.Client
	probe  *bmp.Probe

	gdbVersion   string
	probeVersion string
	powerCycles  int

	mu       sync.Mutex
	verdicts map[*engine.RunResult][]history.Verdict
}

// New creates a runner. No resources are acquired until Run.
func New(cfg *Config) *Runner {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	protocolLogger := plog.OrNoop(cfg.ProtocolLogger)
	s := cfg.Settings

	engineConfig := engine.DefaultConfig()
	engineConfig.StepTimeout = s.CommandTimeout
	engineConfig.StopOnFirstFailure = true
	engineConfig.Vars = map[string]any{
		VarFirmware:  s.Firmware,
		VarLockImage: s.LockImage,
	}

	r := &Runner{
		config:       cfg,
		settings:     s,
		engine:       engine.NewWithConfig(engineConfig),
		engineConfig: engineConfig,
		logger:       logger,
		plog:         protocolLogger,
		power:        cfg.Power,
		connect:      cfg.Connect,
		sessionID:    uuid.NewString(),
		verdicts:     make(map[*engine.RunResult][]history.Verdict),
	}

	if r.power == nil {
		r.power = OrbtraceSwitch(s, logger, protocolLogger)
	}
	if r.connect == nil {
		r.connect = ProcessConnector(s, logger, protocolLogger)
	}

	switch s.Format {
	case "json":
		r.reporter = reporter.NewJSONReporter(cfg.Output, true)
	case "junit":
		r.reporter = reporter.NewJUnitReporter(cfg.Output)
	default:
		r.reporter = reporter.NewTextReporter(cfg.Output, s.Verbose)
	}

	engineConfig.OnStepComplete = r.recordCheckpoint
	engineConfig.OnRunComplete = func(run *engine.RunResult) {
		if !run.Passed {
			r.logger.Error("run failed", "workflow", run.Workflow.ID,
				"iteration", run.Iteration, "category", Category(run.Error), "diagnostic", run.Diagnostic)
		}
		r.reporter.ReportRun(run)
	}

	r.registerDeviceHandlers()
	r.registerUtilityHandlers()
	r.registerCheckers()

	return r
}

// OrbtraceSwitch returns the orbtrace power switch configured in s.
func OrbtraceSwitch(s config.Config, logger *slog.Logger, protocolLogger plog.Logger) *adapter.Orbtrace {
	o := adapter.NewOrbtrace(s.Orbtrace)
	o.Rail = s.PowerRail
	o.Voltage = s.PowerVoltage
	o.Settle = s.PowerSettle
	o.Logger = logger
	o.ProtocolLogger = protocolLogger
	return o
}

// SessionID returns the ID stamped on this runner's protocol log events.
func (r *Runner) SessionID() string { return r.sessionID }

// Engine returns the engine, for registering additional actions.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// Run acquires the bench, runs every workflow Settings.Repeat times and
// releases the bench again. The suite result is returned whenever the
// workflows ran; the error reports failures to start, to record history,
// or verdict sequences that differ between iterations.
func (r *Runner) Run(ctx context.Context) (*engine.SuiteResult, error) {
	workflows, err := r.workflows()
	if err != nil {
		return nil, err
	}

	defer r.Close()
	if err := r.open(ctx); err != nil {
		return nil, err
	}

	result := r.engine.RunSuite(ctx, workflows, r.settings.Repeat)
	result.Name = fmt.Sprintf("nRF54L acceptance (%s)", r.settings.Endpoint)
	result.SessionID = r.sessionID
	r.reporter.ReportSummary(result)

	var errs []error
	if err := r.recordHistory(ctx, result); err != nil {
		errs = append(errs, err)
	}
	if err := r.checkIdempotence(result); err != nil {
		errs = append(errs, err)
	}
	return result, errors.Join(errs...)
}

// workflows loads and validates the workflows to run.
func (r *Runner) workflows() ([]*loader.Workflow, error) {
	workflows := r.config.Workflows
	if workflows == nil {
		var err error
		workflows, err = loader.Load(r.settings.Workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflows: %w", err)
		}
	}
	if len(workflows) == 0 {
		return nil, errors.New("no workflows to run")
	}

	actions := r.engine.Actions()
	var errs []error
	for _, wf := range workflows {
		if err := loader.Validate(wf, actions); err != nil {
			errs = append(errs, err)
		}
	}
	return workflows, errors.Join(errs...)
}

// open starts the adapter and debugger, performs the client handshake and
// selects the probe. Whatever was acquired before a failure is released by
// Close.
func (r *Runner) open(ctx context.Context) error {
	link, err := r.connect(ctx, r.sessionID)
	if err != nil {
		return Infrastructure(fmt.Errorf("connect: %w", err))
	}
	r.link = link

	hctx, cancel := context.WithTimeout(ctx, r.settings.CommandTimeout)
	defer cancel()

	client, err := gdb.New(hctx, link, gdb.WithLogger(r.logger))
	if err != nil {
		return classify(err)
	}
	probe, err := bmp.New(hctx, client, r.settings.Endpoint)
	if err != nil {
		return classify(err)
	}
	r.client = client
	r.probe = probe
	r.logger.Debug("session open", "session", r.sessionID, "endpoint", r.settings.Endpoint)
	return nil
}

// Close releases the debugger and adapter. It is safe to call more than
// once.
func (r *Runner) Close() error {
	r.client = nil
	r.probe = nil
	if r.link == nil {
		return nil
	}
	start := time.Now()
	err := r.link.Close()
	r.link = nil
	r.logger.Debug("session closed", "session", r.sessionID, "took", time.Since(start))
	return err
}

// session returns the open client and probe.
func (r *Runner) session() (*gdb.Client, *bmp.Probe, error) {
	if r.client == nil || r.probe == nil {
		return nil, nil, Infrastructure(ErrNotConnected)
	}
	return r.client, r.probe, nil
}
