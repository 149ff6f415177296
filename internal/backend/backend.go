package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Result is the outcome of a run that reached its execution target. A
// non-zero exit code is a normal result, never an error; the error return of
// Run is reserved for system failures such as a spawn or transport fault.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Backend executes payloads for one server kind. RunDetached is the
// background variant: identical to Run for shells, an isolated interpreter
// for code snippets.
type Backend interface {
	Describe() string
	Run(ctx context.Context, payload string) (Result, error)
	RunDetached(ctx context.Context, payload string) (Result, error)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
			return status.ExitStatus()
		}
	}
	return 1
}

// composeEnv layers configured entries over the host environment. Later
// entries win on duplicate keys, so configured values take precedence.
func composeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
