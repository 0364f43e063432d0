// Package buildsys holds the process-execution capability shared by the
// external build helpers (Conan, CMake). Helpers never call os/exec
// directly; they describe a Command and hand it to a Runner, so callers can
// substitute a fake Runner in tests.
package buildsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string            // working directory, empty means the current one
	Env  map[string]string // merged over os.Environ()

	Stdout io.Writer // nil means the Runner's default
	Stderr io.Writer
}

// String returns the command line as it would be typed in a shell.
func (c *Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes external commands.
type Runner interface {
	// Run starts cmd and waits for it to finish. A command that exits
	// unsuccessfully yields an *ExitError.
	Run(ctx context.Context, cmd *Command) error
}

// ExitError reports an external command that did not exit successfully.
type ExitError struct {
	Cmd  string
	Code int    // exit code, -1 if the process did not exit normally
	Why  string // process state, e.g. "signal: killed"
	Tail string // trailing stderr output, if captured
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Cmd, e.Why)
	if e.Tail != "" {
		msg += ": " + e.Tail
	}
	return msg
}

// Exited reports whether the process terminated on its own and so has a
// meaningful exit code.
func (e *ExitError) Exited() bool {
	return e.Code >= 0
}

// ExitCode extracts the exit code carried by err. ok is false when err does
// not wrap an *ExitError or the process never produced a code.
func ExitCode(err error) (code int, ok bool) {
	var ee *ExitError
	if errors.As(err, &ee) && ee.Exited() {
		return ee.Code, true
	}
	return 0, false
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
}

// NewExecRunner returns a Runner streaming tool output to the process's
// standard streams.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ExecRunner) Run(ctx context.Context, c *Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = firstWriter(c.Stdout, r.Stdout, os.Stdout)

	// keep the end of stderr so failures can be reported with the tool's detail
	tail := &tailBuffer{max: 2048}
	cmd.Stderr = io.MultiWriter(firstWriter(c.Stderr, r.Stderr, os.Stderr), tail)
	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ExitError{
			Cmd:  c.String(),
			Code: ee.ExitCode(),
			Why:  ee.ProcessState.String(),
			Tail: lastLine(tail.String()),
		}
	}
	return fmt.Errorf("%s: %w", c.Name, err)
}

func firstWriter(ws ...io.Writer) io.Writer {
	for _, w := range ws {
		if w != nil {
			return w
		}
	}
	return io.Discard
}

// MergeEnv overlays override on base (KEY=VALUE form). The result is sorted
// by key.
func MergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
