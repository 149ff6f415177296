package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// Shell runs payloads through an OS shell with an overridable working
// directory and merged environment.
type Shell struct {
	Shell   string
	Workdir string
	Env     map[string]string
	Logger  *slog.Logger
}

func (b *Shell) Describe() string { return "shell command" }

func (b *Shell) log() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return discardLogger
}

func (b *Shell) shell() string {
	if b.Shell != "" {
		return b.Shell
	}
	return "/bin/sh"
}

func (b *Shell) Run(ctx context.Context, payload string) (Result, error) {
	cmd := exec.CommandContext(ctx, b.shell(), "-c", payload)
	if b.Workdir != "" {
		cmd.Dir = b.Workdir
	}
	cmd.Env = composeEnv(b.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	b.log().Debug("running shell command", "shell", b.shell(), "bytes", len(payload))
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("start shell: %w", err)
		}
	}
	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCodeFromError(err)}
	b.log().Debug("shell command finished", "exit", res.ExitCode)
	return res, nil
}

// RunDetached matches Run; shells need no isolation beyond the child process.
func (b *Shell) RunDetached(ctx context.Context, payload string) (Result, error) {
	return b.Run(ctx, payload)
}
