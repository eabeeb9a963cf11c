// Package shelltest provides a recording shell.Runner for tests.
package shelltest

import (
	"context"
	"sync"

	"github.com/oshokin/xpi-release/internal/shell"
)

// Handler produces the outcome of a faked command.
type Handler func(cmd *shell.Command) (string, error)

// Runner records every command and answers with registered handlers.
// Commands without a handler succeed with empty output.
type Runner struct {
	mu       sync.Mutex
	calls    []shell.Command
	handlers map[string]Handler
}

// NewRunner creates an empty recording runner.
func NewRunner() *Runner {
	return &Runner{
		handlers: make(map[string]Handler),
	}
}

// On registers a handler for an executable name.
func (r *Runner) On(name string, handler Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = handler

	return r
}

// Run implements shell.Runner.
func (r *Runner) Run(_ context.Context, cmd *shell.Command) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, shell.Command{
		Name: cmd.Name,
		Args: append([]string(nil), cmd.Args...),
		Dir:  cmd.Dir,
	})
	handler := r.handlers[cmd.Name]
	r.mu.Unlock()

	if handler == nil {
		return "", nil
	}

	return handler(cmd)
}

// Calls returns a copy of the recorded commands.
func (r *Runner) Calls() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]shell.Command(nil), r.calls...)
}

// Lines returns the recorded commands rendered as shell lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()

	lines := make([]string, 0, len(calls))
	for i := range calls {
		lines = append(lines, calls[i].String())
	}

	return lines
}

// Find returns the recorded commands with the given executable name.
func (r *Runner) Find(name string) []shell.Command {
	var found []shell.Command

	for _, cmd := range r.Calls() {
		if cmd.Name == name {
			found = append(found, cmd)
		}
	}

	return found
}
