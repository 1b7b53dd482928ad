package bmp

import (
	"context"
	"fmt"
	"slices"

	"github.com/zyp/gdb-autotest/pkg/gdb"
)

// DefaultEndpoint is where the Black Magic Debug App listens for GDB.
const DefaultEndpoint = "localhost:2000"

// eraseOK is the complete output of a successful "erase_mass".
var eraseOK = []string{"Erasing device Flash:", "done"}

// Probe is a gdb.Client connected to a Black Magic probe.
type Probe struct {
	*gdb.Client
	endpoint string
}

// New selects the probe at endpoint as extended-remote target.
func New(ctx context.Context, client *gdb.Client, endpoint string) (*Probe, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	ok, err := client.TargetSelect(ctx, "extended-remote", endpoint)
	if err != nil {
		return nil, fmt.Errorf("select probe %s: %w", endpoint, err)
	}
	if !ok {
		return nil, fmt.Errorf("select probe %s: %s", endpoint, client.LastError())
	}
	return &Probe{Client: client, endpoint: endpoint}, nil
}

// Endpoint returns the probe's GDB endpoint.
func (p *Probe) Endpoint() string { return p.endpoint }

// FirmwareVersion returns the first two lines of "monitor version": the
// probe firmware and its hardware description.
func (p *Probe) FirmwareVersion(ctx context.Context) ([]string, error) {
	lines, err := p.Monitor(ctx, "version")
	if err != nil {
		return nil, err
	}
	return lines[:min(2, len(lines))], nil
}

// ScanAccessPorts runs an SWD scan and returns the access-port names in
// identifier order. The returned identifiers become stale as soon as the
// target's topology changes.
func (p *Probe) ScanAccessPorts(ctx context.Context) ([]string, error) {
	lines, err := p.Monitor(ctx, "swd_scan")
	if err != nil {
		return nil, err
	}
	names, err := ParseScan(lines)
	if err != nil {
		return nil, err
	}
	p.Logger().Debug("bmp: swd_scan", "targets", names)
	return names, nil
}

// MassErase erases the attached device. Only the exact two-line success
// output counts as success.
func (p *Probe) MassErase(ctx context.Context) (bool, error) {
	lines, err := p.Monitor(ctx, "erase_mass")
	if err != nil {
		return false, err
	}
	return IsEraseSuccess(lines), nil
}

// IsEraseSuccess reports whether lines are exactly the success output of
// "erase_mass".
func IsEraseSuccess(lines []string) bool {
	return slices.Equal(lines, eraseOK)
}
