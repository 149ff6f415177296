package tools

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/antonkrylov/mcpexec/internal/backend"
	"github.com/antonkrylov/mcpexec/internal/runlog"
	"github.com/antonkrylov/mcpexec/internal/task"
)

const pythonDescription = `Executes Python code on the server host and returns the output. Features:

- Standard code execution with immediate output
- Background execution with detach=true (runs in a separate process)
- Process monitoring and log retrieval
- Full file I/O support
- Access to installed packages and system tools
- Error handling and logging

Examples:
1. Regular execution: {"code": "print('hello')"}
2. Background process: {"code": "import time\ntime.sleep(10)", "detach": true}
3. Check process: {"process_id": "py_1_20260301_120000"}`

// NewPythonEngine wires a code backend into the dispatch engine. Replies
// carry no exit code line; detached runs log the full wrapper program.
func NewPythonEngine(b *backend.Code, tasks *task.Registry, logs *runlog.Sink, logger *slog.Logger) *Engine {
	return &Engine{
		Backend:    b,
		Tasks:      tasks,
		Logs:       logs,
		Logger:     logger,
		Prefix:     "py",
		Field:      "code",
		MissingMsg: "Code is required",
		DescribeRun: func(payload string, detached bool) string {
			if detached {
				return "Code:\n" + backend.DetachedProgram(payload)
			}
			return "Code:\n" + payload
		},
	}
}

// NewPythonServer assembles the code execution server: the execute_python
// tool and its mirror prompt.
func NewPythonServer(version string, eng *Engine) *server.MCPServer {
	s := server.NewMCPServer("mcp-python", version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithLogging(),
	)
	s.AddTool(pythonTool(), eng.HandleTool)
	s.AddPrompt(pythonPrompt(), promptHandler("Python Code Execution Result", eng.DispatchPrompt))
	return s
}

func pythonTool() mcp.Tool {
	return mcp.NewTool("execute_python",
		mcp.WithDescription(pythonDescription),
		mcp.WithString("code",
			mcp.Description("Python code to execute"),
		),
		mcp.WithBoolean("detach",
			mcp.Description("Run in background"),
		),
		mcp.WithString("process_id",
			mcp.Description("Process ID for checking status"),
		),
	)
}

func pythonPrompt() mcp.Prompt {
	return mcp.NewPrompt("execute_python",
		mcp.WithPromptDescription("Execute Python code and return the result"),
		mcp.WithArgument("code",
			mcp.ArgumentDescription("Python code to execute"),
		),
		mcp.WithArgument("detach",
			mcp.ArgumentDescription("Run in background (true/false)"),
		),
		mcp.WithArgument("process_id",
			mcp.ArgumentDescription("Process ID for checking status"),
		),
	)
}
