package adapter

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plog "github.com/zyp/gdb-autotest/pkg/log"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestStartDaemon_CrashOnLaunch(t *testing.T) {
	requireShell(t)
	var states []string
	logger := plog.LoggerFunc(func(e plog.Event) {
		if e.StateChange != nil {
			states = append(states, e.StateChange.NewState)
		}
	})

	_, err := StartDaemon(context.Background(), DaemonConfig{
		Path:           "sh",
		Args:           []string{"-c", "echo 'No probe found'; echo 'giving up' >&2; exit 3"},
		LogPath:        filepath.Join(t.TempDir(), "bmda_log.txt"),
		Grace:          time.Second,
		ProtocolLogger: logger,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDaemonExited))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, []string{"No probe found", "giving up"}, exitErr.Log)
	assert.Contains(t, exitErr.Error(), "quit unexpectedly")
	assert.Equal(t, []string{"starting", "crashed"}, states)
}

func TestStartDaemon_RunsUntilClosed(t *testing.T) {
	requireShell(t)
	logPath := filepath.Join(t.TempDir(), "bmda_log.txt")

	d, err := StartDaemon(context.Background(), DaemonConfig{
		Path:    "sh",
		Args:    []string{"-c", "echo 'Listening on TCP: 2000'; exec sleep 30"},
		LogPath: logPath,
		Grace:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.False(t, d.Exited())
	assert.Positive(t, d.Pid())

	lines, err := d.Log()
	require.NoError(t, err)
	assert.Equal(t, []string{"Listening on TCP: 2000"}, lines)

	require.NoError(t, d.Close())
	assert.True(t, d.Exited())
	require.NoError(t, d.Close())
}

func TestStartDaemon_MissingExecutable(t *testing.T) {
	_, err := StartDaemon(context.Background(), DaemonConfig{
		Path:    filepath.Join(t.TempDir(), "no-such-blackmagic"),
		LogPath: filepath.Join(t.TempDir(), "bmda_log.txt"),
		Grace:   10 * time.Millisecond,
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDaemonExited))
}

func TestStartDaemon_UnwritableLog(t *testing.T) {
	_, err := StartDaemon(context.Background(), DaemonConfig{
		Path:    "sh",
		LogPath: filepath.Join(t.TempDir(), "missing", "dir", "bmda_log.txt"),
	})
	assert.ErrorContains(t, err, "daemon log")
}
