package buildsys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestHelperProcess is not a real test. It is re-executed by helperCommand
// to play the part of an external tool.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("CXXLINK_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprintln(os.Stdout, "out:"+os.Getenv("CXXLINK_HELPER_VALUE"))
	fmt.Fprintln(os.Stderr, "first line")
	fmt.Fprintln(os.Stderr, "helper failed here")
	code, _ := strconv.Atoi(os.Getenv("CXXLINK_HELPER_EXIT"))
	os.Exit(code)
}

func helperCommand(code int, stdout *bytes.Buffer) *Command {
	return &Command{
		Name: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess"},
		Env: map[string]string{
			"CXXLINK_HELPER_PROCESS": "1",
			"CXXLINK_HELPER_EXIT":    strconv.Itoa(code),
			"CXXLINK_HELPER_VALUE":   "ok",
		},
		Stdout: stdout,
		Stderr: &bytes.Buffer{},
	}
}

func TestExecRunnerSuccess(t *testing.T) {
	var out bytes.Buffer
	if err := NewExecRunner().Run(context.Background(), helperCommand(0, &out)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "out:ok\n" {
		t.Fatalf("stdout = %q, want %q", got, "out:ok\n")
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	var out bytes.Buffer
	err := NewExecRunner().Run(context.Background(), helperCommand(3, &out))

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if ee.Code != 3 {
		t.Errorf("Code = %d, want 3", ee.Code)
	}
	if ee.Tail != "helper failed here" {
		t.Errorf("Tail = %q, want last stderr line", ee.Tail)
	}
	if code, ok := ExitCode(fmt.Errorf("wrapped: %w", err)); !ok || code != 3 {
		t.Errorf("ExitCode = %d, %v; want 3, true", code, ok)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	err := NewExecRunner().Run(context.Background(), &Command{Name: "cxxlink-no-such-tool"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, ok := ExitCode(err); ok {
		t.Fatal("missing binary must not report an exit code")
	}
}

func TestExitCodeSignaled(t *testing.T) {
	err := &ExitError{Cmd: "conan build", Code: -1, Why: "signal: killed"}
	if _, ok := ExitCode(err); ok {
		t.Fatal("signaled process must not report an exit code")
	}
	if err.Exited() {
		t.Fatal("Exited() = true for signaled process")
	}
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"B=1", "A=0", "broken"}, map[string]string{"B": "2", "C": "3"})
	want := []string{"A=0", "B=2", "C=3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MergeEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	tb.Write([]byte("abc"))
	tb.Write([]byte("def"))
	if got := tb.String(); got != "cdef" {
		t.Fatalf("tail = %q, want %q", got, "cdef")
	}
}
