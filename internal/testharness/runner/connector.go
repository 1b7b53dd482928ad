package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zyp/gdb-autotest/internal/adapter"
	"github.com/zyp/gdb-autotest/internal/config"
	"github.com/zyp/gdb-autotest/internal/testharness/mock"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	plog "github.com/zyp/gdb-autotest/pkg/log"
	"github.com/zyp/gdb-autotest/pkg/mi"
)

// Link is an open MI channel to a debugger. Closing it releases
// everything acquired to open it.
type Link interface {
	gdb.Exchanger
	io.Closer
}

// Connector opens a Link for one session.
type Connector func(ctx context.Context, sessionID string) (Link, error)

// ProcessConnector starts the probe daemon and then the debugger as
// configured in s. The daemon is stopped again if the debugger fails to
// start.
func ProcessConnector(s config.Config, logger *slog.Logger, protocolLogger plog.Logger) Connector {
	return func(ctx context.Context, sessionID string) (Link, error) {
		daemon, err := adapter.StartDaemon(ctx, adapter.DaemonConfig{
			Path:           s.Blackmagic,
			Args:           s.BlackmagicArgs,
			LogPath:        s.BlackmagicLog,
			Grace:          s.StartupGrace,
			Logger:         logger,
			ProtocolLogger: protocolLogger,
		})
		if err != nil {
			return nil, err
		}

		proc, err := mi.Start(ctx, s.GDB, s.GDBArgs,
			mi.WithLogger(protocolLogger),
			mi.WithSessionID(sessionID),
			mi.WithEndpoint(s.Endpoint),
		)
		if err != nil {
			_ = daemon.Close()
			return nil, err
		}
		return &processLink{Process: proc, daemon: daemon}, nil
	}
}

type processLink struct {
	*mi.Process
	daemon *adapter.Daemon
}

// Close stops the debugger before the daemon it is connected to.
func (l *processLink) Close() error {
	return errors.Join(l.Process.Close(), l.daemon.Close())
}

// SimulatorConnector connects to a simulated debugger and target instead
// of the bench. Each session starts a fresh simulator on g.
func SimulatorConnector(g *mock.GDB, protocolLogger plog.Logger) Connector {
	return func(_ context.Context, sessionID string) (Link, error) {
		stdout, stdin := g.Start()
		return mi.NewTransport(stdout, stdin,
			mi.WithLogger(protocolLogger),
			mi.WithSessionID(sessionID),
			mi.WithEndpoint("simulator"),
		), nil
	}
}
