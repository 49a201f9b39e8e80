// Package runner invokes external binaries and reports their exit status.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sgl-project/fastcopy/pkg/logging"
)

// Runner starts a child process and waits for it to exit.
//
// A non-zero exit status is not an error: it is reported through
// Result.ExitCode and callers decide what it means. Run only fails when the
// process cannot be started at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// Err returns an *ExitError describing the invocation when the process
// exited non-zero, or nil on success.
func (r *Result) Err(tool string, args []string) error {
	if r == nil || r.ExitCode == 0 {
		return nil
	}
	return &ExitError{
		Tool:     tool,
		Args:     append([]string(nil), args...),
		ExitCode: r.ExitCode,
		Stderr:   r.Stderr,
	}
}

// ExitError is returned for a tool that exited with a non-zero status.
// Stderr holds the tool's diagnostic output verbatim.
type ExitError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// LookPath reports whether name resolves to an executable on PATH.
// The result is never cached.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Exec runs processes with os/exec.
type Exec struct {
	logger logging.Interface
}

// New returns a Runner backed by os/exec.
func New(logger logging.Interface) *Exec {
	return &Exec{logger: logging.OrDiscard(logger)}
}

var _ Runner = (*Exec)(nil)

// Run executes name with args, discarding stdout and capturing stderr.
// Cancelling ctx kills the child process.
func (e *Exec) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	log := e.logger.WithField("tool", name).WithField("args", args)

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			log.WithError(err).Debug("Failed to start process")
			return nil, fmt.Errorf("run %s: %w", name, err)
		}
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 && ctx.Err() != nil {
			log.WithError(ctx.Err()).Debug("Process killed")
			return nil, fmt.Errorf("run %s: %w", name, ctx.Err())
		}
	}

	log.WithField("exitCode", res.ExitCode).
		WithField("duration", res.Duration.String()).
		Debug("Process finished")
	return res, nil
}
