package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/antonkrylov/mcpexec/internal/backend"
	cliconfig "github.com/antonkrylov/mcpexec/internal/cli/config"
	"github.com/antonkrylov/mcpexec/internal/runlog"
	"github.com/antonkrylov/mcpexec/internal/session"
	"github.com/antonkrylov/mcpexec/internal/task"
	"github.com/antonkrylov/mcpexec/internal/tools"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	logJSON    bool
	logFile    string
	logLevel   string

	config *cliconfig.Config
	logger *slog.Logger
}

func (r *rootOptions) prepare() error {
	cfg, err := cliconfig.Load(r.configPath)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &cliconfig.Config{}
	}
	r.config = cfg
	logger, err := buildLogger(r.logJSON, r.logFile, r.logLevel)
	if err != nil {
		return err
	}
	r.logger = logger
	return nil
}

// buildLogger assembles the diagnostic logger. Stdout carries the MCP
// transport, so logs go to stderr or a file.
func buildLogger(jsonOut bool, file, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	var w io.Writer = os.Stderr
	if file != "" {
		expanded, err := cliconfig.ExpandPath(file)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "mcpexec",
		Short: "MCP stdio servers for local and remote command execution",
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", cliconfig.DefaultConfigPath(), "path to mcpexec config file (default $HOME/.mcpexec/config)")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit diagnostic logs as JSON")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "append diagnostic logs to a file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return opts.prepare()
	}

	rootCmd.AddCommand(newBashCmd(opts))
	rootCmd.AddCommand(newPythonCmd(opts))
	rootCmd.AddCommand(newSSHCmd(opts))
	rootCmd.AddCommand(newLogsCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newBashCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bash",
		Short: "Serve the shell execution server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := sinkFor(root, "bash")
			if err != nil {
				return err
			}
			workdir := root.config.Workdir
			if workdir != "" {
				if workdir, err = cliconfig.ExpandPath(workdir); err != nil {
					return err
				}
			}
			eng := tools.NewBashEngine(
				&backend.Shell{
					Shell:   root.config.Shell,
					Workdir: workdir,
					Env:     root.config.Env,
					Logger:  root.logger,
				},
				task.New(sink, root.logger),
				sink,
				root.logger,
			)
			return serveStdio(root, "mcp-bash", tools.NewBashServer(version, eng))
		},
	}
}

func newPythonCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "python",
		Short: "Serve the Python execution server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := sinkFor(root, "python")
			if err != nil {
				return err
			}
			eng := tools.NewPythonEngine(
				&backend.Code{
					Interpreter: root.config.Interpreter,
					Env:         root.config.Env,
					Logger:      root.logger,
				},
				task.New(sink, root.logger),
				sink,
				root.logger,
			)
			return serveStdio(root, "mcp-python", tools.NewPythonServer(version, eng))
		},
	}
}

func newSSHCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ssh",
		Short: "Serve the SSH session server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, err := cliconfig.ExpandPath(root.config.SSHConfigPath())
			if err != nil {
				return err
			}
			keyPath, err := cliconfig.ExpandPath(root.config.SSHKeyPath())
			if err != nil {
				return err
			}
			sessions := session.New(session.Options{
				ConfigPath:  cfgPath,
				KeyPath:     keyPath,
				DialTimeout: root.config.DialTimeout(),
				Logger:      root.logger,
			})
			eng := &tools.SSHEngine{Sessions: sessions, Logger: root.logger}
			return serveStdio(root, "mcp-ssh", tools.NewSSHServer(version, eng))
		},
	}
}

// serveStdio runs one MCP server over stdin/stdout until EOF or a
// termination signal.
func serveStdio(root *rootOptions, name string, s *server.MCPServer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.logger.Info("serving", "server", name, "version", version)
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(root.logger.Handler(), slog.LevelError))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	root.logger.Info("server stopped", "server", name)
	return nil
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Config operations",
	}
	configCmd.AddCommand(newConfigInitCmd(root))
	return configCmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			expanded, err := cliconfig.ExpandPath(root.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(expanded); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", expanded)
			}
			if err := cliconfig.Starter().Save(root.configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", expanded)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println("mcpexec " + version)
		},
	}
}

func sinkFor(root *rootOptions, kind string) (*runlog.Sink, error) {
	dir, err := cliconfig.ExpandPath(root.config.LogsDirFor(kind))
	if err != nil {
		return nil, err
	}
	return runlog.New(dir)
}
