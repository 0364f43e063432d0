// Package buildsystest provides a fake buildsys.Runner for tests.
package buildsystest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goplus/cxxlink/pkgs/buildsys"
)

// Handler simulates one external tool. It may write to cmd.Stdout and
// touch the filesystem the way the real tool would.
type Handler func(ctx context.Context, cmd *buildsys.Command) error

// Runner records every command and dispatches it to a Handler registered for
// "<name> <subcommand>" or, failing that, "<name>".
type Runner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []*buildsys.Command
}

// New returns an empty fake Runner. Unhandled commands succeed silently.
func New() *Runner {
	return &Runner{handlers: make(map[string]Handler)}
}

// Handle registers h for key, e.g. "conan install" or "cmake".
func (r *Runner) Handle(key string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = h
	return r
}

// Fail makes key exit with code.
func (r *Runner) Fail(key string, code int) *Runner {
	return r.Handle(key, func(_ context.Context, cmd *buildsys.Command) error {
		return &buildsys.ExitError{Cmd: cmd.String(), Code: code, Why: fmt.Sprintf("exit status %d", code)}
	})
}

func (r *Runner) Run(ctx context.Context, cmd *buildsys.Command) error {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.lookup(cmd)
	r.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, cmd)
}

func (r *Runner) lookup(cmd *buildsys.Command) Handler {
	if len(cmd.Args) > 0 {
		if h, ok := r.handlers[cmd.Name+" "+cmd.Args[0]]; ok {
			return h
		}
	}
	return r.handlers[cmd.Name]
}

// Calls returns the recorded command lines in order.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.String()
	}
	return out
}

// Commands returns the recorded commands in order.
func (r *Runner) Commands() []*buildsys.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*buildsys.Command(nil), r.calls...)
}

// Called reports whether any recorded command line starts with prefix.
func (r *Runner) Called(prefix string) bool {
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
