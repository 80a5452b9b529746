package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrProtected is returned when a tool's output says the input needs a password.
var ErrProtected = errors.New("input is password protected")

// Runner runs an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec runs tools with os/exec, bounding both run time and the number of
// tools running at once.
type Exec struct {
	timeout   time.Duration
	semaphore chan struct{}
}

// NewExec creates an executor. timeout 0 means three minutes; maxWorkers < 1 means one.
func NewExec(timeout time.Duration, maxWorkers int) *Exec {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Exec{timeout: timeout, semaphore: make(chan struct{}, maxWorkers)}
}

// Run executes name with args. A non-zero exit becomes an error carrying the
// tool's stderr.
func (e *Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	select {
	case e.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.semaphore }()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("cmd", name+" "+strings.Join(args, " ")).Msg("running tool")
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s timeout after %v", name, e.timeout)
		}
		out := strings.TrimSpace(stderr.String())
		if isProtected(out) {
			return nil, fmt.Errorf("%s: %w", name, ErrProtected)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, out)
	}
	log.Debug().Str("tool", name).Dur("duration", time.Since(start)).Msg("tool finished")
	return stdout.Bytes(), nil
}

// Available reports whether name resolves on PATH.
func Available(name string) (string, bool) {
	p, err := exec.LookPath(name)
	return p, err == nil
}

func isProtected(output string) bool {
	s := strings.ToLower(output)
	return strings.Contains(s, "password") ||
		strings.Contains(s, "encrypted") ||
		strings.Contains(s, "owner pw")
}
