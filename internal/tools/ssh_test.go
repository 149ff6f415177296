package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/antonkrylov/mcpexec/internal/backend"
	"github.com/antonkrylov/mcpexec/internal/session"
)

type fakeStore struct {
	connectErr    error
	retained      *session.Session
	lastRetain    bool
	execRes       backend.Result
	execErr       error
	disconnectErr error
	infos         []session.Info
	lastExec      string
}

func (f *fakeStore) Connect(ctx context.Context, host, user string, port int, retain bool) (*session.Session, error) {
	f.lastRetain = retain
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	if !retain {
		return nil, nil
	}
	if f.retained == nil {
		f.retained = &session.Session{ID: host + "_1_20260301_120000", Host: host}
	}
	return f.retained, nil
}

func (f *fakeStore) Exec(ctx context.Context, id, command string) (backend.Result, error) {
	f.lastExec = command
	if f.execErr != nil {
		return backend.Result{}, f.execErr
	}
	return f.execRes, nil
}

func (f *fakeStore) Disconnect(id string) error { return f.disconnectErr }

func (f *fakeStore) List() []session.Info { return f.infos }

func TestSSHMissingCommandType(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{}}

	_, err := e.Dispatch(context.Background(), SSHArgs{})
	if err == nil || err.Error() != "command_type is required" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHInvalidCommandType(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{}}

	_, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "bogus"})
	if err == nil || err.Error() != "Invalid command_type: bogus" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHConnectKeepAlive(t *testing.T) {
	store := &fakeStore{}
	e := &SSHEngine{Sessions: store}

	text, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "connect", Host: "rpi1", KeepAlive: true})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Connected to rpi1\nSession ID: rpi1_1_20260301_120000" {
		t.Fatalf("unexpected reply %q", text)
	}
	if !store.lastRetain {
		t.Fatal("keep_alive did not retain")
	}
}

func TestSSHConnectProbe(t *testing.T) {
	store := &fakeStore{}
	e := &SSHEngine{Sessions: store}

	text, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "connect", Host: "rpi1"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Connected to rpi1 and closed connection" {
		t.Fatalf("unexpected reply %q", text)
	}
	if store.lastRetain {
		t.Fatal("probe connect retained")
	}
}

func TestSSHConnectMissingHost(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{}}

	_, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "connect"})
	if err == nil || err.Error() != "host is required for connect" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHConnectFailure(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{connectErr: errors.New("auth failed")}}

	_, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "connect", Host: "rpi1", KeepAlive: true})
	if err == nil || err.Error() != "Failed to establish SSH connection: auth failed" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHExecFormats(t *testing.T) {
	store := &fakeStore{execRes: backend.Result{Stdout: "hi\n"}}
	e := &SSHEngine{Sessions: store}
	args := SSHArgs{CommandType: "exec", SessionID: "rpi1_1_20260301_120000", Command: "echo hi"}

	text, err := e.Dispatch(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Output:\nhi\n\nExit code: 0" {
		t.Fatalf("unexpected reply %q", text)
	}
	if store.lastExec != "echo hi" {
		t.Fatalf("store saw command %q", store.lastExec)
	}

	store.execRes = backend.Result{Stdout: "ok\n", Stderr: "warn\n", ExitCode: 2}
	text, err = e.Dispatch(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Output:\nok\n\nErrors:\nwarn\n\nExit code: 2" {
		t.Fatalf("unexpected reply %q", text)
	}
}

func TestSSHExecMissingFields(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{}}

	for _, args := range []SSHArgs{
		{CommandType: "exec", Command: "ls"},
		{CommandType: "exec", SessionID: "rpi1_1_20260301_120000"},
	} {
		_, err := e.Dispatch(context.Background(), args)
		if err == nil || err.Error() != "session_id and command are required for exec" {
			t.Fatalf("got %v for %+v", err, args)
		}
	}
}

// Against a real registry with no sessions, exec must name the missing ID.
func TestSSHExecUnknownSession(t *testing.T) {
	e := &SSHEngine{Sessions: session.New(session.Options{})}

	_, err := e.Dispatch(context.Background(), SSHArgs{
		CommandType: "exec",
		SessionID:   "ghost_1_20260301_120000",
		Command:     "uptime",
	})
	if err == nil || err.Error() != "No active session found for ID: ghost_1_20260301_120000" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHExecTransportFailureIsText(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{execErr: errors.New("open session: EOF")}}

	text, err := e.Dispatch(context.Background(), SSHArgs{
		CommandType: "exec",
		SessionID:   "rpi1_1_20260301_120000",
		Command:     "uptime",
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Command failed: open session: EOF" {
		t.Fatalf("unexpected reply %q", text)
	}
}

func TestSSHDisconnect(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{}}

	text, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "disconnect", SessionID: "rpi1_1_20260301_120000"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Disconnected session: rpi1_1_20260301_120000" {
		t.Fatalf("unexpected reply %q", text)
	}

	if _, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "disconnect"}); err == nil || err.Error() != "session_id is required for disconnect" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHDisconnectUnknown(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{disconnectErr: fmt.Errorf("%w: x", session.ErrNotFound)}}

	_, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "disconnect", SessionID: "x"})
	if err == nil || err.Error() != "No active session found for ID: x" {
		t.Fatalf("got %v", err)
	}
}

func TestSSHDisconnectCloseFailure(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{disconnectErr: fmt.Errorf("%w: x", session.ErrAlreadyDisconnected)}}

	text, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "disconnect", SessionID: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Session x already disconnected" {
		t.Fatalf("unexpected reply %q", text)
	}
}

func TestSSHList(t *testing.T) {
	store := &fakeStore{}
	e := &SSHEngine{Sessions: store}

	text, err := e.Dispatch(context.Background(), SSHArgs{CommandType: "list"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "No active SSH sessions" {
		t.Fatalf("unexpected reply %q", text)
	}

	store.infos = []session.Info{
		{ID: "db_2_20260301_120000"},
		{ID: "rpi1_1_20260301_120000", Peer: "192.168.1.9:22"},
	}
	text, err = e.Dispatch(context.Background(), SSHArgs{CommandType: "list"})
	if err != nil {
		t.Fatal(err)
	}
	want := "Active SSH sessions:\n" +
		"- db_2_20260301_120000 (connection info unavailable)\n" +
		"- rpi1_1_20260301_120000 (192.168.1.9:22)\n"
	if text != want {
		t.Fatalf("unexpected reply %q", text)
	}
}

func TestSSHNamedToolsShareDispatch(t *testing.T) {
	store := &fakeStore{}
	e := &SSHEngine{Sessions: store}

	req := mcp.CallToolRequest{}
	req.Params.Name = "ssh_connect"
	req.Params.Arguments = map[string]any{"host": "rpi1", "keep_alive": true}
	res, err := e.handleAs("connect")(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); got != "Connected to rpi1\nSession ID: rpi1_1_20260301_120000" {
		t.Fatalf("unexpected reply %q", got)
	}

	store.infos = []session.Info{{ID: "rpi1_1_20260301_120000", Peer: "192.168.1.9:22"}}
	req.Params.Name = "ssh_list_sessions"
	req.Params.Arguments = map[string]any{}
	res, err = e.handleAs("list")(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); got != "Active SSH sessions:\n- rpi1_1_20260301_120000 (192.168.1.9:22)\n" {
		t.Fatalf("unexpected reply %q", got)
	}

	req.Params.Name = "ssh_exec"
	req.Params.Arguments = map[string]any{"session_id": "rpi1_1_20260301_120000"}
	res, err = e.handleAs("exec")(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("missing command did not produce an error result")
	}
	if got := resultText(t, res); got != "session_id and command are required for exec" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSSHPromptMirror(t *testing.T) {
	e := &SSHEngine{Sessions: &fakeStore{}}
	ctx := context.Background()

	text, err := e.DispatchPrompt(ctx, map[string]string{"command_type": "list"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "No active SSH sessions" {
		t.Fatalf("unexpected reply %q", text)
	}

	store := &fakeStore{}
	e = &SSHEngine{Sessions: store}
	text, err = e.DispatchPrompt(ctx, map[string]string{"command_type": "connect", "host": "rpi1", "keep_alive": "false"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Connected to rpi1 and closed connection" {
		t.Fatalf("unexpected reply %q", text)
	}
	if store.lastRetain {
		t.Fatal("keep_alive=false retained")
	}

	if _, err := e.DispatchPrompt(ctx, map[string]string{}); err == nil || err.Error() != "Arguments required" {
		t.Fatalf("got %v", err)
	}
}
