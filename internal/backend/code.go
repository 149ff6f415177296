package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// foregroundGuard executes a snippet read from stdin and rewrites any
// uncaught exception into a single error line instead of a traceback.
const foregroundGuard = `import sys

try:
    exec(compile(sys.stdin.read(), "<code>", "exec"), {}, {})
except Exception as e:
    print(f"Error: {e}", file=sys.stderr)
`

// Code runs interpreted snippets through an external interpreter.
type Code struct {
	Interpreter string
	Env         map[string]string
	Logger      *slog.Logger
}

func (b *Code) Describe() string { return "code snippet" }

func (b *Code) log() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return discardLogger
}

func (b *Code) interpreter() string {
	if b.Interpreter != "" {
		return b.Interpreter
	}
	return "python3"
}

// Run executes the snippet synchronously under the foreground guard.
func (b *Code) Run(ctx context.Context, payload string) (Result, error) {
	cmd := exec.CommandContext(ctx, b.interpreter(), "-c", foregroundGuard)
	cmd.Stdin = strings.NewReader(payload)
	cmd.Env = composeEnv(b.Env)
	return b.capture(cmd)
}

// RunDetached writes the async wrapper program to a uniquely named file and
// runs it in a fresh interpreter, so a crash cannot reach the server process.
func (b *Code) RunDetached(ctx context.Context, payload string) (Result, error) {
	program := DetachedProgram(payload)
	name := filepath.Join(os.TempDir(), "mcpexec_task_"+strings.ReplaceAll(uuid.NewString(), "-", "")+".py")
	if err := os.WriteFile(name, []byte(program), 0o600); err != nil {
		return Result{}, fmt.Errorf("write task program: %w", err)
	}
	defer os.Remove(name)
	cmd := exec.CommandContext(ctx, b.interpreter(), name)
	cmd.Env = composeEnv(b.Env)
	return b.capture(cmd)
}

func (b *Code) capture(cmd *exec.Cmd) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	b.log().Debug("running snippet", "interpreter", b.interpreter())
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("start interpreter: %w", err)
		}
	}
	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCodeFromError(err)}
	b.log().Debug("snippet finished", "exit", res.ExitCode)
	return res, nil
}

// DetachedProgram wraps a snippet into an asynchronous unit for a fresh
// interpreter: the snippet body runs inside an async function driven by the
// interpreter's event loop runner.
func DetachedProgram(payload string) string {
	var sb strings.Builder
	sb.WriteString("import asyncio\n\nasync def _task():\n")
	for _, line := range strings.Split(payload, "\n") {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\nasyncio.run(_task())\n")
	return sb.String()
}
