package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/wagiedev/transactor-go/internal/config"
	"github.com/wagiedev/transactor-go/internal/errors"
)

const (
	// maxStderrBufferSize is the maximum size for the stderr buffer.
	// Stderr reading continues indefinitely (callback receives all lines),
	// but the buffer stops growing after this limit to prevent unbounded memory usage.
	maxStderrBufferSize = 1024 * 1024 // 1MB
)

// Process is a spawned peer. It is safe for concurrent use.
type Process struct {
	log            *slog.Logger
	name           string
	args           []string
	env            []string
	cwd            string
	stderrCallback func(string)

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr io.ReadCloser

	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	exited  chan struct{}
	waitErr error

	mu      sync.Mutex
	closing bool // Whether Close() has been called (intentional shutdown)
	closed  bool
}

// New creates a process description. Nothing runs until Start.
func New(log *slog.Logger, name string, args []string, options *config.Options) *Process {
	p := &Process{
		log:    log.With("component", "subprocess", "command", name),
		name:   name,
		args:   args,
		exited: make(chan struct{}),
	}

	if options != nil {
		p.cwd = options.Cwd
		p.stderrCallback = options.Stderr
		p.env = buildEnvironment(options.Env)
	}

	return p
}

// buildEnvironment appends extra variables to the current environment.
func buildEnvironment(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}

	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}

	return env
}

// Start spawns the process.
//
// The process is killed if ctx is cancelled before it exits.
// Returns a *errors.TransportError if the pipes or the process cannot be set up.
func (p *Process) Start(ctx context.Context) error {
	p.log.Info("Starting peer process")

	//nolint:gosec // G204: launching a caller-chosen peer is the point of this package
	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Dir = p.cwd
	cmd.Env = p.env

	childIn, stdin, err := os.Pipe()
	if err != nil {
		return &errors.TransportError{Op: "spawn", Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, childOut, err := os.Pipe()
	if err != nil {
		closeAll(childIn, stdin)

		return &errors.TransportError{Op: "spawn", Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	cmd.Stdin = childIn
	cmd.Stdout = childOut

	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeAll(childIn, stdin, stdout, childOut)

		return &errors.TransportError{Op: "spawn", Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		closeAll(childIn, stdin, stdout, childOut)
		p.log.Error("Failed to start peer process", "error", err)

		return &errors.TransportError{Op: "spawn", Err: fmt.Errorf("start process: %w", err)}
	}

	// The child holds its own copies now.
	closeAll(childIn, childOut)

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.stderr = stderr

	go p.wait()

	p.log.Info("Peer process started", "pid", cmd.Process.Pid)

	return nil
}

func closeAll(files ...io.Closer) {
	for _, f := range files {
		_ = f.Close()
	}
}

// wait drains stderr, reaps the process, and records how it ended.
func (p *Process) wait() {
	defer close(p.exited)

	// Stderr reads must complete before Wait.
	// See: https://pkg.go.dev/os/exec#Cmd.StderrPipe
	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		line := scanner.Text()

		p.stderrMu.Lock()

		if p.stderrBuf.Len() < maxStderrBufferSize {
			if p.stderrBuf.Len() > 0 {
				p.stderrBuf.WriteString("\n")
			}

			p.stderrBuf.WriteString(line)
		}

		p.stderrMu.Unlock()

		if p.stderrCallback != nil {
			p.stderrCallback(line)
		}
	}

	if err := scanner.Err(); err != nil {
		p.log.Debug("Stderr scanner error", "error", err)
	}

	err := p.cmd.Wait()
	if err == nil {
		p.log.Info("Peer process exited successfully")

		return
	}

	exitCode := -1
	if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
		exitCode = exitErr.ExitCode()
	}

	p.mu.Lock()
	isClosing := p.closing
	p.mu.Unlock()

	// ExitCode is -1 for a process ended by a signal, such as the kill from
	// Close. An exit status the child chose itself is still reported.
	if isClosing && exitCode == -1 {
		p.log.Debug("Peer process terminated during shutdown")

		return
	}

	p.stderrMu.Lock()
	stderrOutput := strings.TrimSpace(p.stderrBuf.String())
	p.stderrMu.Unlock()

	p.log.Error("Peer process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

	p.waitErr = &errors.ProcessError{
		ExitCode: exitCode,
		Stderr:   stderrOutput,
		Err:      err,
	}
}

// Stdin returns the write end of the child's standard input.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the read end of the child's standard output.
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// Exited returns a channel that is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err returns a *errors.ProcessError if the process exited abnormally on its
// own. It returns nil while the process runs, after a clean exit, and after
// an exit caused by Close.
func (p *Process) Err() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Stderr returns the captured stderr output so far.
func (p *Process) Stderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return p.stderrBuf.String()
}

// Close ends the child's input, kills the process if it is still running,
// and waits for it to be reaped.
//
// It returns the *errors.ProcessError of a process that had already failed
// on its own. It is safe to call Close multiple times.
func (p *Process) Close() error {
	p.mu.Lock()

	if p.closed || p.cmd == nil {
		p.mu.Unlock()

		return nil
	}

	p.closed = true

	kill := false

	select {
	case <-p.exited:
	default:
		p.closing = true
		kill = true
	}

	p.mu.Unlock()

	_ = p.stdin.Close()

	if kill {
		p.log.Debug("Killing peer process", "pid", p.cmd.Process.Pid)

		if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			p.log.Warn("Failed to kill peer process", "pid", p.cmd.Process.Pid, "error", err)
		}
	}

	<-p.exited

	_ = p.stdout.Close()

	return p.waitErr
}
