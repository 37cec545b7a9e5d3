// Package ssh provides the SSH-based remote execution channel used to apply
// configuration to hosts.
package ssh

import (
	"context"
	"time"
)

// Transport is the opaque remote-execution channel keyed by (address,
// credential). The core engine only requires execute and upload semantics.
type Transport interface {
	// Connect establishes the connection to the remote host.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and releases all resources.
	Disconnect() error

	// IsConnected reports whether the transport has an active connection.
	IsConnected() bool

	// Execute runs a command on the remote host. A non-zero exit status is
	// reported in ExecResult.ExitCode, not as an error; errors indicate
	// channel failures.
	Execute(ctx context.Context, cmd string) (ExecResult, error)

	// ExecuteSudo runs a command under sudo. The password may be empty when
	// NOPASSWD is configured.
	ExecuteSudo(ctx context.Context, cmd string, password string) (ExecResult, error)

	// Upload writes data to a remote path via SFTP with the given mode.
	Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error

	// Checksum computes the SHA256 checksum of a remote file. Returns an
	// empty string when the file does not exist.
	Checksum(ctx context.Context, remotePath string) (string, error)
}

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	// Stdout is the trimmed standard output.
	Stdout string

	// Stderr is the trimmed standard error.
	Stderr string

	// ExitCode is the command's exit status.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Ok reports whether the command exited zero.
func (r ExecResult) Ok() bool {
	return r.ExitCode == 0
}

// TransportError is an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g. "connect", "execute", "upload").
	Op string

	// Host is the remote address.
	Host string

	// Err is the underlying error.
	Err error

	// IsTemporary marks transient failures (timeouts, refused connections)
	// that callers may retry with backoff.
	IsTemporary bool

	// IsAuthError marks authentication failures, which are never transient.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	if e.Host != "" {
		return "transport: " + e.Op + " " + e.Host + ": " + e.Err.Error()
	}
	return "transport: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure may succeed on retry.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
