package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	plog "github.com/zyp/gdb-autotest/pkg/log"
)

// ErrDaemonExited is returned when the daemon exits during its startup
// grace period.
var ErrDaemonExited = errors.New("adapter: daemon exited")

// ExitError describes a daemon that quit on launch. Log holds the lines it
// wrote before exiting.
type ExitError struct {
	Path string
	Err  error
	Log  []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s quit unexpectedly: %v", e.Path, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Is reports ErrDaemonExited as matching.
func (e *ExitError) Is(target error) bool { return target == ErrDaemonExited }

// DaemonConfig configures StartDaemon.
type DaemonConfig struct {
	// Path is the daemon executable.
	Path string

	// Args are passed to the daemon.
	Args []string

	// LogPath receives the daemon's stdout and stderr.
	LogPath string

	// Grace is how long the daemon must stay up after launch to be
	// considered started. Exit within this window fails StartDaemon.
	Grace time.Duration

	// StopTimeout bounds the wait after SIGTERM before the daemon is killed.
	StopTimeout time.Duration

	// Logger receives operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives adapter state changes.
	ProtocolLogger plog.Logger
}

// Daemon is a running adapter daemon. Close must be called on every exit
// path once StartDaemon succeeded.
type Daemon struct {
	cfg     DaemonConfig
	cmd     *exec.Cmd
	logFile *os.File

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
}

// StartDaemon launches the daemon with its output redirected to
// cfg.LogPath and waits cfg.Grace to catch an immediate crash. A crash is
// reported as *ExitError and its log is copied to the operational log.
func StartDaemon(ctx context.Context, cfg DaemonConfig) (*Daemon, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.ProtocolLogger = plog.OrNoop(cfg.ProtocolLogger)
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	logFile, err := os.Create(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("daemon log: %w", err)
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.Path, err)
	}

	d := &Daemon{cfg: cfg, cmd: cmd, logFile: logFile, done: make(chan struct{})}
	go func() {
		d.waitErr = cmd.Wait()
		close(d.done)
	}()
	d.state("", "starting", "")

	timer := time.NewTimer(cfg.Grace)
	defer timer.Stop()
	select {
	case <-d.done:
		logFile.Close()
		lines, _ := readLines(cfg.LogPath)
		cfg.Logger.Error("daemon quit unexpectedly", "path", cfg.Path, "err", d.waitErr)
		for _, l := range lines {
			cfg.Logger.Info(l)
		}
		d.state("starting", "crashed", fmt.Sprint(d.waitErr))
		return nil, &ExitError{Path: cfg.Path, Err: d.exitErr(), Log: lines}
	case <-ctx.Done():
		_ = d.Close()
		return nil, ctx.Err()
	case <-timer.C:
	}

	d.state("starting", "running", "")
	cfg.Logger.Debug("daemon started", "path", cfg.Path, "pid", cmd.Process.Pid, "log", cfg.LogPath)
	return d, nil
}

// Pid returns the daemon's process ID.
func (d *Daemon) Pid() int { return d.cmd.Process.Pid }

// Exited reports whether the daemon has exited.
func (d *Daemon) Exited() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Log returns the lines the daemon has written so far.
func (d *Daemon) Log() ([]string, error) {
	return readLines(d.cfg.LogPath)
}

// Close terminates the daemon and waits for it to exit.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		if !d.Exited() {
			_ = d.cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-d.done:
			case <-time.After(d.cfg.StopTimeout):
				_ = d.cmd.Process.Kill()
				<-d.done
			}
		}
		d.logFile.Close()
		d.state("running", "stopped", "")
	})
	return nil
}

func (d *Daemon) exitErr() error {
	if d.waitErr != nil {
		return d.waitErr
	}
	return errors.New("exit status 0")
}

func (d *Daemon) state(from, to, reason string) {
	d.cfg.ProtocolLogger.Log(plog.Event{
		Timestamp: time.Now(),
		Layer:     plog.LayerWorkflow,
		Category:  plog.CategoryState,
		StateChange: &plog.StateChangeEvent{
			Entity:   plog.StateEntityAdapter,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, sc.Err()
}
