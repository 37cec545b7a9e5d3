package ssh

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Execute runs a command on the remote host. Non-zero exit statuses are
// returned in the result; only channel failures surface as errors.
func (c *Client) Execute(ctx context.Context, cmd string) (ExecResult, error) {
	return c.execute(ctx, cmd, false, "")
}

// ExecuteSudo runs a command under sudo.
func (c *Client) ExecuteSudo(ctx context.Context, cmd string, password string) (ExecResult, error) {
	return c.execute(ctx, cmd, true, password)
}

func (c *Client) execute(ctx context.Context, cmd string, useSudo bool, sudoPassword string) (ExecResult, error) {
	startTime := time.Now()

	client, err := c.getClient()
	if err != nil {
		return ExecResult{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		return ExecResult{}, &TransportError{
			Op:          "execute",
			Host:        c.config.Address(),
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	finalCmd := cmd
	if useSudo {
		if sudoPassword != "" {
			session.Stdin = strings.NewReader(sudoPassword + "\n")
			finalCmd = "sudo -S -p '' " + cmd
		} else {
			finalCmd = "sudo -n " + cmd
		}
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.config.CommandTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(finalCmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-doneChan:
	}

	result := ExecResult{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("command", cmd).
		Bool("sudo", useSudo).
		Dur("duration", result.Duration).
		Err(runErr).
		Msg("command completed")

	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			// Command ran; non-zero exit is a result, not a channel error.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, &TransportError{
			Op:          "execute",
			Host:        c.config.Address(),
			Err:         runErr,
			IsTemporary: true,
		}
	}

	return result, nil
}
