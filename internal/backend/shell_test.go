package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestShellRunCapturesStreams(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	b := &Shell{}
	res, err := b.Run(context.Background(), "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "out\n" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit = %d", res.ExitCode)
	}
}

func TestShellRunNonZeroExitIsNotError(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	b := &Shell{}
	res, err := b.Run(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit = %d, want 3", res.ExitCode)
	}
}

func TestShellRunSpawnFailureIsError(t *testing.T) {
	b := &Shell{Shell: "/nonexistent/shell"}
	if _, err := b.Run(context.Background(), "true"); err == nil {
		t.Fatalf("expected spawn failure")
	}
}

func TestShellEnvExplicitWins(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	t.Setenv("MCPEXEC_TEST_VAR", "host")
	b := &Shell{Env: map[string]string{"MCPEXEC_TEST_VAR": "configured"}}
	res, err := b.Run(context.Background(), `printf '%s' "$MCPEXEC_TEST_VAR"`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "configured" {
		t.Fatalf("configured env must win, got %q", res.Stdout)
	}
}

func TestShellHostEnvInherited(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	t.Setenv("MCPEXEC_TEST_INHERIT", "inherited")
	b := &Shell{Env: map[string]string{"OTHER": "x"}}
	res, err := b.Run(context.Background(), `printf '%s' "$MCPEXEC_TEST_INHERIT"`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "inherited" {
		t.Fatalf("host env must be inherited, got %q", res.Stdout)
	}
}

func TestShellWorkdirOverride(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	b := &Shell{Workdir: dir}
	res, err := b.Run(context.Background(), "cat marker.txt")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "here" || res.ExitCode != 0 {
		t.Fatalf("relative path not resolved in workdir: stdout=%q exit=%d", res.Stdout, res.ExitCode)
	}
}
