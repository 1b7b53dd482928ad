package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zyp/gdb-autotest/internal/testharness/mock"
	"github.com/zyp/gdb-autotest/pkg/bmp"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	"github.com/zyp/gdb-autotest/pkg/mi"
	"github.com/zyp/gdb-autotest/pkg/nrf54l"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newProbe(t *testing.T, target *mock.Target) (*bmp.Probe, *mock.GDB) {
	t.Helper()
	sim := mock.NewGDB(target)
	stdout, stdin := sim.Start()
	tr := mi.NewTransport(stdout, stdin)
	t.Cleanup(func() {
		stdin.Close()
		tr.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := gdb.New(ctx, tr)
	require.NoError(t, err)
	probe, err := bmp.New(ctx, client, bmp.DefaultEndpoint)
	require.NoError(t, err)
	return probe, sim
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTarget_PowerOnLocked(t *testing.T) {
	target := mock.NewTarget()
	assert.False(t, target.Powered())
	assert.Empty(t, target.Scan())

	require.NoError(t, target.SetPower(context.Background(), true))
	assert.True(t, target.Locked())
	assert.Equal(t, []string{nrf54l.NameProtectedAccessPort}, target.Scan())
	assert.Equal(t, 1, target.PowerCycles())
}

func TestTarget_EraseUnlocksUntilPowerCycle(t *testing.T) {
	ctx := context.Background()
	target := mock.NewTarget()
	require.NoError(t, target.SetPower(ctx, true))

	require.NoError(t, target.Attach(1))
	require.NoError(t, target.MassErase())
	require.NoError(t, target.Detach())
	assert.False(t, target.Locked())
	assert.Equal(t, []string{nrf54l.NameCore, nrf54l.NameAccessPort}, target.Scan())

	require.NoError(t, target.SetPower(ctx, false))
	require.NoError(t, target.SetPower(ctx, true))
	assert.True(t, target.Locked(), "erased target must relock")
	assert.Equal(t, 1, target.Erases())
}

func TestTarget_KeepRRAMOnErase(t *testing.T) {
	ctx := context.Background()
	target := mock.NewTarget()
	require.NoError(t, target.SetPower(ctx, true))
	require.NoError(t, target.Attach(1))
	require.NoError(t, target.MassErase())
	require.NoError(t, target.Download(mock.FirmwareImage))

	target.Faults.KeepRRAMOnErase = true
	require.NoError(t, target.MassErase())
	assert.Equal(t, mock.FirmwareImage.Name, target.Firmware())
	matched, err := target.Matches(mock.FirmwareImage)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, matched)

	target.Faults.KeepRRAMOnErase = false
	require.NoError(t, target.MassErase())
	assert.Empty(t, target.Firmware())
}

func TestTarget_FirmwareKeepsUnlockedAndLockImageLocks(t *testing.T) {
	ctx := context.Background()
	target := mock.NewTarget()
	require.NoError(t, target.SetPower(ctx, true))
	require.NoError(t, target.Attach(1))
	require.NoError(t, target.MassErase())

	require.NoError(t, target.Download(mock.FirmwareImage))
	require.NoError(t, target.Detach())
	require.NoError(t, target.SetPower(ctx, false))
	require.NoError(t, target.SetPower(ctx, true))
	assert.False(t, target.Locked())
	assert.Equal(t, mock.FirmwareImage.Name, target.Firmware())

	require.NoError(t, target.Attach(1))
	require.NoError(t, target.Download(mock.LockImage))
	assert.False(t, target.Locked(), "protection applies on reset")
	require.NoError(t, target.Detach())
	assert.True(t, target.Locked())
}

func TestTarget_Errors(t *testing.T) {
	target := mock.NewTarget()
	assert.ErrorIs(t, target.Attach(1), mock.ErrNotPowered)

	require.NoError(t, target.SetPower(context.Background(), true))
	assert.ErrorIs(t, target.Attach(2), mock.ErrNoSuchAccessPort)
	assert.ErrorIs(t, target.Detach(), mock.ErrNotAttached)
	assert.ErrorIs(t, target.MassErase(), mock.ErrNotAttached)

	require.NoError(t, target.Attach(1))
	_, err := target.Regions()
	assert.ErrorIs(t, err, mock.ErrNotCore, "locked AP 1 is the CTRL-AP")

	target.Faults.FailErase = true
	assert.ErrorIs(t, target.MassErase(), mock.ErrRefused)

	target.Faults.RefuseAttach = true
	assert.ErrorIs(t, target.Attach(1), mock.ErrRefused)

	assert.Equal(t, []string{"power on", "attach 1"}, target.History())
}

func TestGDB_LockLifecycle(t *testing.T) {
	ctx := ctxT(t)
	target := mock.NewTarget()
	probe, sim := newProbe(t, target)
	require.NoError(t, target.SetPower(ctx, true))

	version, err := probe.Version(ctx)
	require.NoError(t, err)
	assert.Contains(t, version, "GNU gdb")

	fw, err := probe.FirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultProbeVersion[:2], fw)

	names, err := probe.ScanAccessPorts(ctx)
	require.NoError(t, err)
	assert.Equal(t, nrf54l.StateLocked, nrf54l.Classify(names).State)

	ok, err := probe.Attach(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = probe.MassErase(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = probe.Detach(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	names, err = probe.ScanAccessPorts(ctx)
	require.NoError(t, err)
	topo := nrf54l.Classify(names)
	require.Equal(t, nrf54l.StateUnlocked, topo.State)
	core, _ := topo.CoreAP()

	ok, err = probe.Attach(ctx, core)
	require.NoError(t, err)
	require.True(t, ok)

	m, err := probe.MemoryMap(ctx)
	require.NoError(t, err)
	require.NoError(t, nrf54l.CheckMemoryMap(m, nrf54l.Layout))

	ok, err = probe.LoadSymbols(ctx, mock.FirmwareImage.Name)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = probe.Download(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	matched, err := probe.CompareSections(ctx)
	require.NoError(t, err)
	assert.True(t, matched)

	outcome, err := probe.RunToStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, gdb.StartStopped, outcome)

	ok, err = probe.MassErase(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	matched, err = probe.CompareSections(ctx)
	require.NoError(t, err)
	assert.False(t, matched)

	assert.Contains(t, sim.Commands(), "-target-select extended-remote localhost:2000")
	assert.Contains(t, sim.Commands(), `interpreter console "monitor erase_mass"`)
}

func TestGDB_OperationFailures(t *testing.T) {
	ctx := ctxT(t)
	target := mock.NewTarget()
	probe, _ := newProbe(t, target)
	require.NoError(t, target.SetPower(ctx, true))

	ok, err := probe.Attach(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Attaching to target failed", probe.LastError())

	ok, err = probe.Detach(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = probe.LoadSymbols(ctx, "missing.elf")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, probe.LastError(), "No such file")

	ok, err = probe.MassErase(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "erase without attach must fail")

	_, ok, err = probe.Peek(ctx, 0x20000000, "int")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGDB_PeekPokeBreakpoint(t *testing.T) {
	ctx := ctxT(t)
	target := mock.NewTarget()
	probe, _ := newProbe(t, target)
	require.NoError(t, target.SetPower(ctx, true))
	require.NoError(t, target.Attach(1))
	require.NoError(t, target.MassErase())
	require.NoError(t, target.Detach())

	ok, err := probe.Attach(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = probe.Poke(ctx, 0x20000000, 0xdeadbeef, "unsigned int")
	require.NoError(t, err)
	require.True(t, ok)
	v, ok, err := probe.Peek(ctx, 0x20000000, "unsigned int")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0xdeadbeef), v)

	_, ok, err = probe.SetBreakpoint(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok, "no symbols loaded yet")

	ok, err = probe.LoadSymbols(ctx, mock.FirmwareImage.Name)
	require.NoError(t, err)
	require.True(t, ok)
	id, ok, err := probe.SetBreakpoint(ctx, "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestGDB_RunWithoutFirmwareFails(t *testing.T) {
	ctx := ctxT(t)
	target := mock.NewTarget()
	probe, _ := newProbe(t, target)
	require.NoError(t, target.SetPower(ctx, true))
	require.NoError(t, target.Attach(1))
	require.NoError(t, target.MassErase())

	ok, err := probe.LoadSymbols(ctx, mock.FirmwareImage.Name)
	require.NoError(t, err)
	require.True(t, ok)

	outcome, err := probe.RunToStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, gdb.StartFailed, outcome)
}

func TestGDB_RunHangIsIndeterminate(t *testing.T) {
	target := mock.NewTarget()
	target.Faults.HangOnRun = true
	probe, _ := newProbe(t, target)

	ctx := ctxT(t)
	require.NoError(t, target.SetPower(ctx, true))
	require.NoError(t, target.Attach(1))
	require.NoError(t, target.MassErase())
	require.NoError(t, target.Download(mock.FirmwareImage))
	ok, err := probe.LoadSymbols(ctx, mock.FirmwareImage.Name)
	require.NoError(t, err)
	require.True(t, ok)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	outcome, err := probe.RunToStart(short)
	require.NoError(t, err)
	assert.Equal(t, gdb.StartIndeterminate, outcome)
}

func TestGDB_Faults(t *testing.T) {
	ctx := ctxT(t)
	target := mock.NewTarget()
	probe, _ := newProbe(t, target)
	require.NoError(t, target.SetPower(ctx, true))

	target.Faults.ScanGap = true
	_, err := probe.ScanAccessPorts(ctx)
	assert.ErrorIs(t, err, mi.ErrProtocol)
	target.Faults.ScanGap = false

	target.Faults.ScanNames = []string{"Some Other MCU"}
	names, err := probe.ScanAccessPorts(ctx)
	require.NoError(t, err)
	assert.Equal(t, nrf54l.StateUnexpected, nrf54l.Classify(names).State)
	target.Faults.ScanNames = nil

	require.NoError(t, target.SetPower(ctx, false))
	names, err = probe.ScanAccessPorts(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	target.Faults.TokenSkew = true
	_, err = probe.Attach(ctx, 1)
	assert.ErrorIs(t, err, mi.ErrProtocol)
}

func TestGDB_UnknownCommands(t *testing.T) {
	ctx := ctxT(t)
	probe, _ := newProbe(t, mock.NewTarget())

	lines, err := probe.Monitor(ctx, "frobnicate")
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, "Command failed", probe.LastError())

	records, err := probe.Exchange(ctx, "-no-such-command")
	require.NoError(t, err)
	res, err := mi.SingleResult("-no-such-command", records)
	require.NoError(t, err)
	assert.Equal(t, mi.MessageError, res.Message)
}
