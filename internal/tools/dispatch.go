package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/antonkrylov/mcpexec/internal/backend"
	"github.com/antonkrylov/mcpexec/internal/runlog"
	"github.com/antonkrylov/mcpexec/internal/task"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Engine dispatches execute calls for one local server: status queries,
// detached starts, and synchronous runs. Every run is recorded through the
// sink; foreground runs log under an identifier that never reaches the
// caller.
type Engine struct {
	Backend    backend.Backend
	Tasks      *task.Registry
	Logs       *runlog.Sink
	Logger     *slog.Logger
	Prefix     string
	Field      string
	MissingMsg string
	// ExitInReply appends the exit code to synchronous replies.
	ExitInReply bool
	// DescribeRun renders the payload line logged after the start marker.
	DescribeRun func(payload string, detached bool) string
}

func (e *Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return discardLogger
}

// Dispatch classifies one call. A status query wins over everything else,
// then the payload is validated, then detach decides between background and
// synchronous execution. The error return carries invalid-request messages
// verbatim.
func (e *Engine) Dispatch(ctx context.Context, payload string, detach bool, processID string) (string, error) {
	e.log().Debug("dispatching", "field", e.Field, "detach", detach, "process_id", processID)
	if processID != "" {
		return e.status(processID), nil
	}
	if payload == "" {
		return "", errors.New(e.MissingMsg)
	}
	if detach {
		id := e.Tasks.Begin(e.Prefix, func(ctx context.Context, id string) {
			e.runLogged(ctx, id, payload, true)
		})
		return "Started background process " + id, nil
	}
	id := e.Tasks.NewID(e.Prefix)
	res, err := e.runLogged(ctx, id, payload, false)
	if err != nil {
		return "", err
	}
	return e.formatReply(res), nil
}

func (e *Engine) status(id string) string {
	rep, err := e.Tasks.Lookup(id)
	if err != nil {
		e.log().Warn("lookup failed", "id", id, "err", err)
		return fmt.Sprintf("No logs found for process %s", id)
	}
	switch rep.State {
	case task.StillRunning:
		return fmt.Sprintf("Process %s is still running", id)
	case task.LogContents:
		return "Process logs:\n" + rep.Contents
	default:
		return fmt.Sprintf("No logs found for process %s", id)
	}
}

// runLogged executes one payload and writes the full log sequence: start
// marker, resolved payload, captured streams, terminal status. A spawn
// failure replaces the tail with a single error line.
func (e *Engine) runLogged(ctx context.Context, id, payload string, detached bool) (backend.Result, error) {
	e.append(id, "Starting background process...")
	e.append(id, e.DescribeRun(payload, detached))
	var res backend.Result
	var err error
	if detached {
		res, err = e.Backend.RunDetached(ctx, payload)
	} else {
		res, err = e.Backend.Run(ctx, payload)
	}
	if err != nil {
		e.append(id, fmt.Sprintf("Error: %v", err))
		e.log().Error("run failed", "id", id, "err", err)
		return backend.Result{}, err
	}
	if res.Stdout != "" {
		e.append(id, "Output: "+res.Stdout)
	}
	if res.Stderr != "" {
		e.append(id, "Error: "+res.Stderr)
	}
	e.append(id, fmt.Sprintf("Process exited with code: %d", res.ExitCode))
	return res, nil
}

func (e *Engine) append(id, content string) {
	if err := e.Logs.Append(id, content); err != nil {
		e.log().Warn("log append failed", "id", id, "err", err)
	}
}

func (e *Engine) formatReply(res backend.Result) string {
	var sb strings.Builder
	if res.Stdout != "" {
		sb.WriteString("Output:\n" + res.Stdout)
	}
	if res.Stderr != "" {
		sb.WriteString("Errors:\n" + res.Stderr)
	}
	if e.ExitInReply {
		fmt.Fprintf(&sb, "Exit code: %d", res.ExitCode)
	}
	if sb.Len() == 0 {
		return "No output"
	}
	return sb.String()
}

// HandleTool adapts Dispatch to an MCP tool handler. Invalid requests come
// back as tool error results carrying the exact message, never as protocol
// failures.
func (e *Engine) HandleTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload := mcp.ParseString(req, e.Field, "")
	detach := mcp.ParseBoolean(req, "detach", false)
	processID := mcp.ParseString(req, "process_id", "")
	return textOrError(e.Dispatch(ctx, payload, detach, processID))
}

// DispatchPrompt runs the prompt-surface variant, where every argument
// arrives as a string.
func (e *Engine) DispatchPrompt(ctx context.Context, args map[string]string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("Arguments required")
	}
	detach, _ := strconv.ParseBool(args["detach"])
	return e.Dispatch(ctx, args[e.Field], detach, args["process_id"])
}

func textOrError(text string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// promptHandler wraps a prompt dispatch into the mirror-prompt shape: the
// reply text becomes a single user message under a fixed description.
func promptHandler(description string, dispatch func(context.Context, map[string]string) (string, error)) server.PromptHandlerFunc {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		text, err := dispatch(ctx, req.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return mcp.NewGetPromptResult(description, []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		}), nil
	}
}
