package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/antonkrylov/mcpexec/internal/backend"
	"github.com/antonkrylov/mcpexec/internal/sshconfig"
)

// client is the slice of *ssh.Client the registry needs; tests substitute it.
type client interface {
	backend.SSHConn
	Close() error
	RemoteAddr() net.Addr
}

// Session is one live SSH connection. The identifier derives from the
// requested host alias, never the resolved dial target.
type Session struct {
	ID        string
	Host      string
	Target    string
	User      string
	Port      int
	CreatedAt time.Time
	conn      client
}

// ErrNotFound indicates no live session under the identifier.
var ErrNotFound = fmt.Errorf("session not found")

// ErrAlreadyDisconnected reports a close failure after removal; the handle
// stays gone either way.
var ErrAlreadyDisconnected = fmt.Errorf("session already disconnected")

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Options configure the registry.
type Options struct {
	ConfigPath  string
	KeyPath     string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Registry tracks live SSH sessions. Sessions have no idle eviction; they
// live until an explicit disconnect or process exit.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      atomic.Uint64
	opts     Options
	logger   *slog.Logger
	dial     func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (client, error)
}

func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger
	}
	return &Registry{
		sessions: map[string]*Session{},
		opts:     opts,
		logger:   logger,
		dial:     dialSSH,
	}
}

func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (r *Registry) newID(host string) string {
	return fmt.Sprintf("%s_%d_%s", host, r.seq.Add(1), time.Now().Format("20060102_150405"))
}

// authMethods builds key and agent auth. The returned cleanup closes the
// agent socket once the handshake no longer needs it.
func (r *Registry) authMethods() ([]ssh.AuthMethod, func()) {
	var methods []ssh.AuthMethod
	cleanup := func() {}
	if r.opts.KeyPath != "" {
		if key, err := os.ReadFile(r.opts.KeyPath); err == nil {
			signer, err := ssh.ParsePrivateKey(key)
			if err != nil {
				r.logger.Warn("unusable private key", "path", r.opts.KeyPath, "err", err)
			} else {
				methods = append(methods, ssh.PublicKeys(signer))
			}
		}
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			cleanup = func() { conn.Close() }
		}
	}
	return methods, cleanup
}

// Connect resolves the target and establishes a connection. With retain the
// session is stored under a fresh identifier and returned; without it the
// connection is closed right after the handshake and nil is returned. A
// failed connect allocates no identifier.
func (r *Registry) Connect(ctx context.Context, host, user string, port int, retain bool) (*Session, error) {
	resolved := sshconfig.Resolve(r.opts.ConfigPath, host, user, port)
	methods, cleanup := r.authMethods()
	defer cleanup()
	cfg := &ssh.ClientConfig{
		User: resolved.User,
		Auth: methods,
		// The original trusts any host key; sessions are established to
		// hosts the operator already controls.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.opts.DialTimeout,
	}
	addr := net.JoinHostPort(resolved.Target, strconv.Itoa(resolved.Port))
	r.logger.Info("connecting", "host", host, "addr", addr, "user", resolved.User)
	conn, err := r.dial(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	if !retain {
		_ = conn.Close()
		return nil, nil
	}
	sess := &Session{
		ID:        r.newID(host),
		Host:      host,
		Target:    resolved.Target,
		User:      resolved.User,
		Port:      resolved.Port,
		CreatedAt: time.Now(),
		conn:      conn,
	}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	r.logger.Info("session established", "id", sess.ID)
	return sess, nil
}

// Exec runs a command on a live session.
func (r *Registry) Exec(ctx context.Context, id, command string) (backend.Result, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return backend.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return backend.RemoteShell{Conn: sess.conn}.Run(ctx, command)
}

// Disconnect removes the session from the live set before closing it, so a
// concurrent Exec can never observe a closing session. The handle is never
// restored; a close failure degrades to ErrAlreadyDisconnected.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := sess.conn.Close(); err != nil {
		r.logger.Warn("close failed after removal", "id", id, "err", err)
		return fmt.Errorf("%w: %s", ErrAlreadyDisconnected, id)
	}
	r.logger.Info("session disconnected", "id", id)
	return nil
}

// Info describes one live session for listings. Peer is empty when the peer
// address cannot be determined.
type Info struct {
	ID   string
	Peer string
}

// List returns a snapshot of live sessions ordered by identifier.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for id, sess := range r.sessions {
		info := Info{ID: id}
		if addr := sess.conn.RemoteAddr(); addr != nil {
			info.Peer = addr.String()
		}
		out = append(out, info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
