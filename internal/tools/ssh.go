package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/antonkrylov/mcpexec/internal/backend"
	"github.com/antonkrylov/mcpexec/internal/session"
)

const sshDescription = `Executes SSH operations including connecting to hosts, running commands, and managing sessions. Features:

- Create and manage persistent SSH connections
- Execute commands on remote machines
- List active sessions
- Disconnect from sessions
- Full SSH config support

Examples:
1. Connect: {"command_type": "connect", "host": "rpi1"}
2. Execute: {"command_type": "exec", "session_id": "rpi1_1_20260301_120000", "command": "ls -la"}
3. Disconnect: {"command_type": "disconnect", "session_id": "rpi1_1_20260301_120000"}`

// SSHArgs carries the execute_ssh fields; the named tools fill the same
// struct with a fixed operation.
type SSHArgs struct {
	CommandType string
	Host        string
	Username    string
	Port        int
	KeepAlive   bool
	SessionID   string
	Command     string
}

// SessionStore is the slice of the session registry the engine dispatches
// against.
type SessionStore interface {
	Connect(ctx context.Context, host, user string, port int, retain bool) (*session.Session, error)
	Exec(ctx context.Context, id, command string) (backend.Result, error)
	Disconnect(id string) error
	List() []session.Info
}

// SSHEngine routes SSH operations to the session store and renders the
// textual replies.
type SSHEngine struct {
	Sessions SessionStore
	Logger   *slog.Logger
}

func (e *SSHEngine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return discardLogger
}

// Dispatch routes one tagged call. The error return carries invalid-request
// messages verbatim.
func (e *SSHEngine) Dispatch(ctx context.Context, args SSHArgs) (string, error) {
	e.log().Debug("dispatching", "command_type", args.CommandType)
	switch args.CommandType {
	case "connect":
		return e.connect(ctx, args)
	case "exec":
		return e.exec(ctx, args)
	case "disconnect":
		return e.disconnect(args)
	case "list":
		return e.list(), nil
	case "":
		return "", errors.New("command_type is required")
	default:
		return "", fmt.Errorf("Invalid command_type: %s", args.CommandType)
	}
}

func (e *SSHEngine) connect(ctx context.Context, args SSHArgs) (string, error) {
	if args.Host == "" {
		return "", errors.New("host is required for connect")
	}
	sess, err := e.Sessions.Connect(ctx, args.Host, args.Username, args.Port, args.KeepAlive)
	if err != nil {
		return "", fmt.Errorf("Failed to establish SSH connection: %v", err)
	}
	if sess == nil {
		return fmt.Sprintf("Connected to %s and closed connection", args.Host), nil
	}
	return fmt.Sprintf("Connected to %s\nSession ID: %s", args.Host, sess.ID), nil
}

func (e *SSHEngine) exec(ctx context.Context, args SSHArgs) (string, error) {
	if args.SessionID == "" || args.Command == "" {
		return "", errors.New("session_id and command are required for exec")
	}
	res, err := e.Sessions.Exec(ctx, args.SessionID, args.Command)
	if errors.Is(err, session.ErrNotFound) {
		return "", fmt.Errorf("No active session found for ID: %s", args.SessionID)
	}
	if err != nil {
		// The command never reached the remote shell; report it in the
		// reply rather than failing the call.
		return fmt.Sprintf("Command failed: %v", err), nil
	}
	return formatRemote(res), nil
}

func formatRemote(res backend.Result) string {
	var sb strings.Builder
	if res.Stdout != "" {
		sb.WriteString("Output:\n" + res.Stdout)
	}
	if res.Stderr != "" {
		sb.WriteString("\nErrors:\n" + res.Stderr)
	}
	fmt.Fprintf(&sb, "\nExit code: %d", res.ExitCode)
	return sb.String()
}

func (e *SSHEngine) disconnect(args SSHArgs) (string, error) {
	if args.SessionID == "" {
		return "", errors.New("session_id is required for disconnect")
	}
	err := e.Sessions.Disconnect(args.SessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "", fmt.Errorf("No active session found for ID: %s", args.SessionID)
	case errors.Is(err, session.ErrAlreadyDisconnected):
		return fmt.Sprintf("Session %s already disconnected", args.SessionID), nil
	case err != nil:
		return "", err
	}
	return "Disconnected session: " + args.SessionID, nil
}

func (e *SSHEngine) list() string {
	infos := e.Sessions.List()
	if len(infos) == 0 {
		return "No active SSH sessions"
	}
	var sb strings.Builder
	sb.WriteString("Active SSH sessions:\n")
	for _, info := range infos {
		if info.Peer != "" {
			fmt.Fprintf(&sb, "- %s (%s)\n", info.ID, info.Peer)
		} else {
			fmt.Fprintf(&sb, "- %s (connection info unavailable)\n", info.ID)
		}
	}
	return sb.String()
}

func parseSSHArgs(req mcp.CallToolRequest) SSHArgs {
	return SSHArgs{
		CommandType: mcp.ParseString(req, "command_type", ""),
		Host:        mcp.ParseString(req, "host", ""),
		Username:    mcp.ParseString(req, "username", ""),
		Port:        mcp.ParseInt(req, "port", 0),
		KeepAlive:   mcp.ParseBoolean(req, "keep_alive", true),
		SessionID:   mcp.ParseString(req, "session_id", ""),
		Command:     mcp.ParseString(req, "command", ""),
	}
}

// HandleTool serves the tagged execute_ssh tool.
func (e *SSHEngine) HandleTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textOrError(e.Dispatch(ctx, parseSSHArgs(req)))
}

// handleAs serves a named tool by fixing the operation and reusing the
// tagged dispatch.
func (e *SSHEngine) handleAs(commandType string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := parseSSHArgs(req)
		args.CommandType = commandType
		return textOrError(e.Dispatch(ctx, args))
	}
}

// DispatchPrompt runs the prompt-surface variant, where every argument
// arrives as a string.
func (e *SSHEngine) DispatchPrompt(ctx context.Context, raw map[string]string) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("Arguments required")
	}
	args := SSHArgs{
		CommandType: raw["command_type"],
		Host:        raw["host"],
		Username:    raw["username"],
		SessionID:   raw["session_id"],
		Command:     raw["command"],
		KeepAlive:   true,
	}
	if v := raw["port"]; v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			args.Port = port
		}
	}
	if v, ok := raw["keep_alive"]; ok {
		if keep, err := strconv.ParseBool(v); err == nil {
			args.KeepAlive = keep
		}
	}
	return e.Dispatch(ctx, args)
}

// NewSSHServer assembles the SSH server: the tagged execute_ssh tool, four
// named tools sharing its handlers, and the mirror prompt.
func NewSSHServer(version string, eng *SSHEngine) *server.MCPServer {
	s := server.NewMCPServer("mcp-ssh", version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithLogging(),
	)
	s.AddTool(executeSSHTool(), eng.HandleTool)
	s.AddTool(sshConnectTool(), eng.handleAs("connect"))
	s.AddTool(sshExecTool(), eng.handleAs("exec"))
	s.AddTool(sshDisconnectTool(), eng.handleAs("disconnect"))
	s.AddTool(sshListSessionsTool(), eng.handleAs("list"))
	s.AddPrompt(sshPrompt(), promptHandler("SSH Operation Result", eng.DispatchPrompt))
	return s
}

func executeSSHTool() mcp.Tool {
	return mcp.NewTool("execute_ssh",
		mcp.WithDescription(sshDescription),
		mcp.WithString("command_type",
			mcp.Required(),
			mcp.Description("Type of SSH operation: connect, exec, disconnect, or list"),
		),
		mcp.WithString("host",
			mcp.Description("SSH host to connect to (for connect)"),
		),
		mcp.WithString("username",
			mcp.Description("SSH username (for connect)"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port (for connect)"),
		),
		mcp.WithBoolean("keep_alive",
			mcp.Description("Keep connection alive (for connect)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session ID (for exec/disconnect)"),
		),
		mcp.WithString("command",
			mcp.Description("Command to execute (for exec)"),
		),
	)
}

func sshConnectTool() mcp.Tool {
	return mcp.NewTool("ssh_connect",
		mcp.WithDescription("Establish an SSH connection to a host, optionally keeping the session alive for later commands"),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("SSH host to connect to"),
		),
		mcp.WithString("username",
			mcp.Description("SSH username"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port"),
		),
		mcp.WithBoolean("keep_alive",
			mcp.Description("Keep connection alive (default: true)"),
		),
	)
}

func sshExecTool() mcp.Tool {
	return mcp.NewTool("ssh_exec",
		mcp.WithDescription("Execute a command on an established SSH session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by ssh_connect"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command to execute"),
		),
	)
}

func sshDisconnectTool() mcp.Tool {
	return mcp.NewTool("ssh_disconnect",
		mcp.WithDescription("Close an established SSH session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID to disconnect"),
		),
	)
}

func sshListSessionsTool() mcp.Tool {
	return mcp.NewTool("ssh_list_sessions",
		mcp.WithDescription("List active SSH sessions with their peer addresses"),
	)
}

func sshPrompt() mcp.Prompt {
	return mcp.NewPrompt("execute_ssh",
		mcp.WithPromptDescription("Run an SSH operation and return the result"),
		mcp.WithArgument("command_type",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Type of SSH operation: connect, exec, disconnect, or list"),
		),
		mcp.WithArgument("host",
			mcp.ArgumentDescription("SSH host to connect to (for connect)"),
		),
		mcp.WithArgument("username",
			mcp.ArgumentDescription("SSH username (for connect)"),
		),
		mcp.WithArgument("port",
			mcp.ArgumentDescription("SSH port (for connect)"),
		),
		mcp.WithArgument("keep_alive",
			mcp.ArgumentDescription("Keep connection alive (for connect)"),
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Session ID (for exec/disconnect)"),
		),
		mcp.WithArgument("command",
			mcp.ArgumentDescription("Command to execute (for exec)"),
		),
	)
}
