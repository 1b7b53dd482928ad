package mi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// DefaultArgs selects the MI interpreter version spoken by this package.
var DefaultArgs = []string{"--interpreter=mi4"}

// Process is a debugger subprocess driven over its standard streams.
type Process struct {
	*Transport

	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

// Start launches path with args (DefaultArgs when nil) and attaches a
// Transport to its stdin and stdout. The process is killed when ctx is
// cancelled; Close must be called on every exit path.
func Start(ctx context.Context, path string, args []string, opts ...Option) (*Process, error) {
	if args == nil {
		args = DefaultArgs
	}
	o := buildOptions(opts)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = o.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	p := &Process{cmd: cmd, stdin: stdin}
	p.Transport = newTransport(stdout, stdin, o)
	return p, nil
}

// Pid returns the debugger's process ID.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Close terminates the debugger and waits for it to exit.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.Transport.stop()
		_ = p.stdin.Close()
		_ = p.cmd.Process.Kill()
		<-p.Transport.readerDone
		if err := p.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				p.closeErr = fmt.Errorf("wait %s: %w", p.cmd.Path, err)
			}
		}
	})
	return p.closeErr
}
