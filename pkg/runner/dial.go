package runner

import (
	"context"

	"github.com/reeveops/reeve/pkg/inventory"
	"github.com/reeveops/reeve/pkg/modules"
	transportssh "github.com/reeveops/reeve/pkg/transport/ssh"
)

// SSHDialer dials inventory hosts over SSH. Per-host inventory fields
// override the base configuration.
type SSHDialer struct {
	base transportssh.Config
}

// NewSSHDialer creates a dialer from a base transport configuration.
// The base carries connection-wide settings (timeouts, host key
// policy); host, port and credentials come from the inventory.
func NewSSHDialer(base transportssh.Config) *SSHDialer {
	return &SSHDialer{base: base}
}

// Dial implements Dialer.
func (d *SSHDialer) Dial(ctx context.Context, host *inventory.Host) (Session, error) {
	cfg := d.base
	cfg.Host = host.Address
	if cfg.Host == "" {
		cfg.Host = host.Name
	}
	if host.Port != 0 {
		cfg.Port = host.Port
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if host.User != "" {
		cfg.User = host.User
	}
	if host.KeyPath != "" {
		cfg.PrivateKeyPath = host.KeyPath
	}
	if host.Password != "" {
		cfg.Password = host.Password
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := transportssh.NewClient(&cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	return &sshSession{client: client, sudoPassword: cfg.Password}, nil
}

// sshSession adapts a transport client to the runner session interface.
type sshSession struct {
	client       *transportssh.Client
	sudoPassword string
}

func (s *sshSession) Run(ctx context.Context, cmd string) (modules.Output, error) {
	res, err := s.client.Execute(ctx, cmd)
	return toOutput(res), err
}

func (s *sshSession) RunSudo(ctx context.Context, cmd string) (modules.Output, error) {
	res, err := s.client.ExecuteSudo(ctx, cmd, s.sudoPassword)
	return toOutput(res), err
}

func (s *sshSession) Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	return s.client.Upload(ctx, data, remotePath, mode)
}

func (s *sshSession) Checksum(ctx context.Context, remotePath string) (string, error) {
	return s.client.Checksum(ctx, remotePath)
}

func (s *sshSession) Close() error {
	return s.client.Disconnect()
}

func toOutput(res transportssh.ExecResult) modules.Output {
	return modules.Output{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}
}
