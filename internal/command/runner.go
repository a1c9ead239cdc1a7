/*
Copyright 2024 The Kubetools Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package command executes external processes, optionally capturing
// their output through a concurrent line reader, and provides the
// bounded readiness wait loop used across kubetools.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
)

// CaptureMode selects how a command's output is handled.
type CaptureMode int

const (
	// CaptureAuto captures output unless the runner is in debug mode.
	CaptureAuto CaptureMode = iota
	// CaptureAlways buffers output regardless of debug mode.
	CaptureAlways
	// CaptureNever streams output to the terminal.
	CaptureNever
)

// ExecError reports an external command that failed to spawn or exited
// with a positive code. It carries the attempted arguments and whatever
// output was captured for diagnostics.
type ExecError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command failed: %s", strings.Join(e.Args, " "))
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s\n%s", msg, e.Output)
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// ansiEscape matches ANSI escape sequences, stripped from captured
// output so progress lines render cleanly.
var ansiEscape = regexp.MustCompile(`(\x9B|\x1B\[)[0-?]*[ -/]*[@-~]`)

// Runner executes external commands. The zero value is usable and
// captures output with the default wait budget.
type Runner struct {
	// Debug switches the default mode to inline streaming.
	Debug bool

	// Waiter polls the captured output reader. Defaults to
	// NewWaiter(0, 0).
	Waiter *Waiter

	// Stdout and Stderr receive inline output. Default to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns a runner with the default wait budget.
func NewRunner(debug bool) *Runner {
	return &Runner{Debug: debug, Waiter: NewWaiter(0, 0)}
}

// Run executes args with the given environment overrides and returns
// the captured output. In inline mode the output is empty.
func (r *Runner) Run(ctx context.Context, args []string, env map[string]string, mode CaptureMode) (string, error) {
	if len(args) == 0 {
		return "", &ExecError{Err: errors.New("no command given")}
	}

	capturing := mode == CaptureAlways || (mode == CaptureAuto && !r.Debug)
	if capturing {
		return r.runCaptured(ctx, args, env)
	}
	return "", r.runInline(ctx, args, env)
}

func (r *Runner) runInline(ctx context.Context, args []string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = mergedEnv(env)
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()

	if err := cmd.Run(); err != nil {
		if failed(err) {
			return &ExecError{Args: args, Err: err}
		}
	}
	return nil
}

// runCaptured spawns the child with stdout and stderr merged into one
// pipe. A reader goroutine pushes ANSI-stripped lines onto a bounded
// channel; the main flow drains it through the wait loop, showing the
// last line as progress. Channel close is the sole completion signal.
func (r *Runner) runCaptured(ctx context.Context, args []string, env map[string]string) (string, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = mergedEnv(env)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", &ExecError{Args: args, Err: err}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", &ExecError{Args: args, Err: err}
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- ansiEscape.ReplaceAllString(scanner.Text(), "")
		}
	}()

	var buf []string
	check := func(previous string) (string, bool) {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return previous, true
				}
				buf = append(buf, line)
				previous = line
			default:
				return previous, false
			}
		}
	}

	waiter := r.Waiter
	if waiter == nil {
		waiter = NewWaiter(0, 0)
	}

	if _, werr := waiter.Wait(check); werr != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		// The reader goroutine may be parked on a full channel; keep
		// receiving until it observes the closed pipe and closes the
		// channel, or Wait below would never reap the child.
		for line := range lines {
			buf = append(buf, line)
		}
		_ = cmd.Wait()
		return strings.Join(buf, "\n"), werr
	}

	output := strings.Join(buf, "\n")

	// Capture is complete; make sure the child cannot leak, then
	// collect its exit status.
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		_ = cmd.Process.Kill()
	}
	if err := cmd.Wait(); err != nil && failed(err) {
		return output, &ExecError{Args: args, Output: output, Err: err}
	}
	return output, nil
}

// failed reports whether an exec error counts as a command failure:
// a strictly positive exit code, or anything that is not an exit
// status at all (spawn errors). Signal deaths after a completed
// capture are not failures.
func failed(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() > 0
	}
	return true
}

func mergedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	merged := os.Environ()
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	return merged
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}
