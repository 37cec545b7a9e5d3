package ssh

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// Upload writes data to a remote path via SFTP with the given mode.
func (c *Client) Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Host:        c.config.Address(),
			Err:         fmt.Errorf("failed to open sftp session: %w", err),
			IsTemporary: true,
		}
	}
	defer sftpClient.Close()

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:   "upload",
			Host: c.config.Address(),
			Err:  fmt.Errorf("failed to create %s: %w", remotePath, err),
		}
	}

	if _, err := dst.Write(data); err != nil {
		_ = dst.Close()
		return &TransportError{
			Op:          "upload",
			Host:        c.config.Address(),
			Err:         err,
			IsTemporary: true,
		}
	}
	if err := dst.Close(); err != nil {
		return &TransportError{Op: "upload", Host: c.config.Address(), Err: err}
	}

	if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return &TransportError{
			Op:   "chmod",
			Host: c.config.Address(),
			Err:  err,
		}
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("path", remotePath).
		Int("bytes", len(data)).
		Msg("file uploaded")

	return nil
}

// Checksum computes the SHA256 checksum of a remote file. A missing file
// yields an empty checksum without error.
func (c *Client) Checksum(ctx context.Context, remotePath string) (string, error) {
	result, err := c.Execute(ctx, "sha256sum "+shellQuote(remotePath))
	if err != nil {
		return "", err
	}
	if !result.Ok() {
		// sha256sum exits non-zero when the file does not exist.
		return "", nil
	}

	fields := strings.Fields(result.Stdout)
	if len(fields) == 0 {
		return "", &TransportError{
			Op:   "checksum",
			Host: c.config.Address(),
			Err:  fmt.Errorf("unexpected sha256sum output %q", result.Stdout),
		}
	}
	return fields[0], nil
}

// shellQuote single-quotes a string for safe interpolation into sh commands.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
