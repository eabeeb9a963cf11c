package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"

	"github.com/oshokin/xpi-release/internal/logger"
)

// stderrTail is how many trailing bytes of stderr an ExitError keeps.
const stderrTail = 2048

var (
	// ErrToolNotFound is returned when the executable cannot be located.
	ErrToolNotFound = errors.New("tool not found")
	// ErrTimeout is returned when a command runs longer than the runner's timeout.
	ErrTimeout = errors.New("command timed out")
	// errEmptyCommand is returned for a command without an executable.
	errEmptyCommand = errors.New("command name must be provided")
)

// Command describes a single external tool invocation.
type Command struct {
	// Name is the executable, looked up in PATH unless it contains a separator.
	Name string
	// Args are passed verbatim; no shell expansion takes place.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// New returns a Command for name and args.
func New(name string, args ...string) *Command {
	return &Command{
		Name: name,
		Args: args,
	}
}

// In sets the working directory of the command.
func (c *Command) In(dir string) *Command {
	c.Dir = dir

	return c
}

// String renders the command as a shell-quoted line.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, word := range append([]string{c.Name}, c.Args...) {
		quoted, err := syntax.Quote(word, syntax.LangBash)
		if err != nil {
			quoted = strconv.Quote(word)
		}

		parts = append(parts, quoted)
	}

	return strings.Join(parts, " ")
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	// Command is the shell-quoted command line.
	Command string
	// Code is the exit status.
	Code int
	// Stderr is the tail of the command's standard error.
	Stderr string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	}

	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, e.Stderr)
}

// Runner executes commands and returns their standard output.
type Runner interface {
	Run(ctx context.Context, cmd *Command) (string, error)
}

// Exec runs commands as child processes.
type Exec struct {
	// timeout bounds every command; zero disables the limit.
	timeout time.Duration
}

// Option configures an Exec runner.
type Option func(*Exec)

// WithTimeout bounds every command run by the runner.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Exec) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewExec creates a runner that starts child processes.
func NewExec(opts ...Option) *Exec {
	e := new(Exec)
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes cmd and returns its trimmed standard output.
func (e *Exec) Run(ctx context.Context, cmd *Command) (string, error) {
	if cmd == nil || cmd.Name == "" {
		return "", errEmptyCommand
	}

	if cmd.Dir != "" {
		if _, err := os.Stat(cmd.Dir); err != nil {
			return "", fmt.Errorf("working directory of %s: %w", cmd.Name, err)
		}
	}

	runCtx, cancel := e.runContext(ctx)
	defer cancel()

	logger.DebugKV(ctx, "Running command", "command", cmd.String(), "dir", cmd.Dir)

	var stdout, stderr bytes.Buffer

	//nolint:gosec // Running release tooling with caller-provided arguments is the point.
	process := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	process.Dir = cmd.Dir
	process.Stdout = &stdout
	process.Stderr = &stderr

	err := process.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	return "", e.classify(ctx, runCtx, cmd, err, stderr.String())
}

// classify maps a failed run onto the package's error variants.
func (e *Exec) classify(ctx, runCtx context.Context, cmd *Command, err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", cmd.Name, ErrToolNotFound)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", cmd.String(), ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", cmd.String(), e.timeout, ErrTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Command: cmd.String(),
			Code:    exitErr.ExitCode(),
			Stderr:  tail(strings.TrimSpace(stderr), stderrTail),
		}
	}

	return fmt.Errorf("run %s: %w", cmd.String(), err)
}

// runContext returns a context with the runner's timeout if configured,
// otherwise a cancellable child context without a deadline.
func (e *Exec) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, e.timeout)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return "..." + s[len(s)-n:]
}
