package tools

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/antonkrylov/mcpexec/internal/backend"
	"github.com/antonkrylov/mcpexec/internal/runlog"
	"github.com/antonkrylov/mcpexec/internal/task"
)

const bashDescription = `Executes shell commands on the server host and returns the output. Features:

- Standard command execution with immediate output
- Background process execution with detach=true
- Process monitoring and log retrieval
- Full file system access
- Access to system tools and utilities
- Error handling and logging

Examples:
1. Regular execution: {"command": "ls -la"}
2. Background process: {"command": "sleep 10 && touch /tmp/done", "detach": true}
3. Check process: {"process_id": "bash_1_20260301_120000"}`

// NewBashEngine wires a shell backend into the dispatch engine.
func NewBashEngine(b *backend.Shell, tasks *task.Registry, logs *runlog.Sink, logger *slog.Logger) *Engine {
	return &Engine{
		Backend:     b,
		Tasks:       tasks,
		Logs:        logs,
		Logger:      logger,
		Prefix:      "bash",
		Field:       "command",
		MissingMsg:  "Command is required",
		ExitInReply: true,
		DescribeRun: func(payload string, _ bool) string { return "Command: " + payload },
	}
}

// NewBashServer assembles the shell execution server: the execute_bash tool
// and its mirror prompt.
func NewBashServer(version string, eng *Engine) *server.MCPServer {
	s := server.NewMCPServer("mcp-bash", version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithLogging(),
	)
	s.AddTool(bashTool(), eng.HandleTool)
	s.AddPrompt(bashPrompt(), promptHandler("Bash Command Execution Result", eng.DispatchPrompt))
	return s
}

func bashTool() mcp.Tool {
	return mcp.NewTool("execute_bash",
		mcp.WithDescription(bashDescription),
		mcp.WithString("command",
			mcp.Description("Shell command to execute"),
		),
		mcp.WithBoolean("detach",
			mcp.Description("Run in background"),
		),
		mcp.WithString("process_id",
			mcp.Description("Process ID for checking status"),
		),
	)
}

func bashPrompt() mcp.Prompt {
	return mcp.NewPrompt("execute_bash",
		mcp.WithPromptDescription("Execute a shell command and return the result"),
		mcp.WithArgument("command",
			mcp.ArgumentDescription("Shell command to execute"),
		),
		mcp.WithArgument("detach",
			mcp.ArgumentDescription("Run in background (true/false)"),
		),
		mcp.WithArgument("process_id",
			mcp.ArgumentDescription("Process ID for checking status"),
		),
	)
}
