package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// SSHConn is the slice of *ssh.Client the remote backend needs.
type SSHConn interface {
	NewSession() (*ssh.Session, error)
}

// RemoteShell runs commands on an established SSH connection, one session
// per command. A non-zero remote exit is a normal result; a transport fault
// (channel open failure, missing exit status) is an error for the caller to
// report textually.
type RemoteShell struct {
	Conn SSHConn
}

func (b RemoteShell) Describe() string { return "remote command" }

func (b RemoteShell) Run(_ context.Context, payload string) (Result, error) {
	sess, err := b.Conn.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	err = sess.Run(payload)
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("run remote command: %w", err)
		}
		res.ExitCode = exitErr.ExitStatus()
	}
	return res, nil
}
