package runner

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/internal/testharness/loader"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	"github.com/zyp/gdb-autotest/pkg/nrf54l"
)

// registerDeviceHandlers registers actions that talk to the probe.
func (r *Runner) registerDeviceHandlers() {
	r.engine.RegisterHandler(ActionVersions, r.handleVersions)
	r.engine.RegisterHandler(ActionSWDScan, r.handleSWDScan)
	r.engine.RegisterHandler(ActionAttach, r.handleAttach)
	r.engine.RegisterHandler(ActionDetach, r.handleDetach)
	r.engine.RegisterHandler(ActionEraseMass, r.handleEraseMass)
	r.engine.RegisterHandler(ActionMemoryMap, r.handleMemoryMap)
	r.engine.RegisterHandler(ActionLoadFile, r.handleLoadFile)
	r.engine.RegisterHandler(ActionDownload, r.handleDownload)
	r.engine.RegisterHandler(ActionCompareSections, r.handleCompareSections)
	r.engine.RegisterHandler(ActionRunToStart, r.handleRunToStart)
	r.engine.RegisterHandler(ActionPeek, r.handlePeek)
	r.engine.RegisterHandler(ActionPoke, r.handlePoke)
	r.engine.RegisterHandler(ActionBreakpoint, r.handleBreakpoint)
}

// handleVersions records the debugger and probe firmware versions and
// applies the configured minimum versions.
func (r *Runner) handleVersions(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, probe, err := r.session()
	if err != nil {
		return nil, err
	}

	version, err := client.Version(ctx)
	if err != nil {
		return nil, classify(err)
	}
	firmware, err := probe.FirmwareVersion(ctx)
	if err != nil {
		return nil, classify(err)
	}
	probeVersion := ""
	if len(firmware) > 0 {
		probeVersion = firmware[0]
	}

	r.gdbVersion = version
	r.probeVersion = strings.Join(firmware, "; ")
	r.logger.Info("GDB version", "version", version)
	for _, line := range firmware {
		r.logger.Info("probe firmware", "line", line)
	}

	outputs := map[string]any{
		KeyGDBVersion:    version,
		KeyProbeVersion:  probeVersion,
		KeyProbeFirmware: firmware,
	}
	if err := gdb.CheckVersion(version, r.settings.MinGDBVersion); err != nil {
		return outputs, Device(fmt.Errorf("gdb: %w", err))
	}
	if err := gdb.CheckVersion(probeVersion, r.settings.MinProbeVersion); err != nil {
		return outputs, Device(fmt.Errorf("probe firmware: %w", err))
	}
	return outputs, nil
}

// handleSWDScan scans the access ports and publishes the topology along
// with the CTRL-AP and core AP identifiers it implies. Identifiers that do
// not apply are published as nil, so referencing them fails the step.
func (r *Runner) handleSWDScan(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	_, probe, err := r.session()
	if err != nil {
		return nil, err
	}

	names, err := probe.ScanAccessPorts(ctx)
	if err != nil {
		return nil, classify(err)
	}
	topo := nrf54l.Classify(names)
	r.logger.Info("SWD scan", "targets", names, "topology", topo.String())

	outputs := map[string]any{
		KeyTargets:  names,
		KeyTopology: topo.State.String(),
		KeyCtrlAP:   nil,
		KeyCoreAP:   nil,
	}
	if ap, ok := topo.CtrlAP(); ok {
		outputs[KeyCtrlAP] = ap
	}
	if ap, ok := topo.CoreAP(); ok {
		outputs[KeyCoreAP] = ap
	}
	return outputs, nil
}

func (r *Runner) handleAttach(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	ap := paramInt(step.Params, ParamAP, 0)
	if ap < 1 {
		return nil, fmt.Errorf("attach: invalid access port %v", step.Params[ParamAP])
	}
	ok, err := client.Attach(ctx, ap)
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return nil, refused(fmt.Sprintf("attach %d", ap), client.LastError())
	}
	return map[string]any{KeyAttached: ap}, nil
}

func (r *Runner) handleDetach(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	ok, err := client.Detach(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return nil, refused("detach", client.LastError())
	}
	return map[string]any{KeyAttached: nil}, nil
}

func (r *Runner) handleEraseMass(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	_, probe, err := r.session()
	if err != nil {
		return nil, err
	}

	ok, err := probe.MassErase(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return map[string]any{KeyErased: false}, refused("mass erase", "")
	}
	return map[string]any{KeyErased: true}, nil
}

// handleMemoryMap reads the target's memory map. The memory_regions
// checker compares it with the expected layout.
func (r *Runner) handleMemoryMap(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	m, err := client.MemoryMap(ctx)
	if err != nil {
		return nil, classify(err)
	}
	r.logger.Debug("memory map", "regions", m.String())
	return map[string]any{KeyMemoryMap: m}, nil
}

// handleLoadFile opens an image for download. When the file is readable
// locally its BLAKE2b-256 digest is published so reports identify the
// exact image that was flashed.
func (r *Runner) handleLoadFile(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	file, _ := step.Params[ParamFile].(string)
	if file == "" {
		return nil, fmt.Errorf("load_file: missing %s", ParamFile)
	}

	outputs := map[string]any{KeyFile: file}
	if data, err := os.ReadFile(file); err == nil {
		sum := blake2b.Sum256(data)
		outputs[KeyDigest] = hex.EncodeToString(sum[:])
	}

	ok, err := client.LoadSymbols(ctx, file)
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return outputs, refused("open "+file, client.LastError())
	}
	r.logger.Info("loaded", "file", file, "digest", outputs[KeyDigest])
	return outputs, nil
}

func (r *Runner) handleDownload(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	ok, err := client.Download(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return map[string]any{KeyDownloaded: false}, refused("download", client.LastError())
	}
	return map[string]any{KeyDownloaded: true}, nil
}

// handleCompareSections publishes whether target memory matches the
// loaded file. A mismatch is not an error; expectations decide.
func (r *Runner) handleCompareSections(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	matched, err := client.CompareSections(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return map[string]any{KeyMatched: matched}, nil
}

func (r *Runner) handleRunToStart(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	outcome, err := client.RunToStart(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return map[string]any{KeyOutcome: outcome.String()}, nil
}

func (r *Runner) handlePeek(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	addr, err := paramUint(step.Params, ParamAddress)
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	value, ok, err := client.Peek(ctx, addr, paramString(step.Params, ParamType, defaultPeekType))
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return map[string]any{KeyValue: nil}, refused(fmt.Sprintf("read %#x", addr), client.LastError())
	}
	return map[string]any{KeyValue: value}, nil
}

func (r *Runner) handlePoke(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	addr, err := paramUint(step.Params, ParamAddress)
	if err != nil {
		return nil, fmt.Errorf("poke: %w", err)
	}
	value, err := paramUint(step.Params, ParamValue)
	if err != nil {
		return nil, fmt.Errorf("poke: %w", err)
	}
	ok, err := client.Poke(ctx, addr, value, paramString(step.Params, ParamType, defaultPeekType))
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return nil, refused(fmt.Sprintf("write %#x", addr), client.LastError())
	}
	return map[string]any{KeyValue: value}, nil
}

func (r *Runner) handleBreakpoint(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	client, _, err := r.session()
	if err != nil {
		return nil, err
	}

	location := paramString(step.Params, ParamLocation, "")
	if location == "" {
		return nil, fmt.Errorf("breakpoint: missing %s", ParamLocation)
	}
	id, ok, err := client.SetBreakpoint(ctx, location)
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return nil, refused("break "+location, client.LastError())
	}
	return map[string]any{KeyBreakpoint: id}, nil
}
