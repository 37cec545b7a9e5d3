package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/reeveops/reeve/pkg/telemetry"
	transportssh "github.com/reeveops/reeve/pkg/transport/ssh"
)

// Settings is the optional TOML settings file. Every field has a
// working default; the file only overrides.
type Settings struct {
	SSH     SSHSettings              `toml:"ssh"`
	Runner  RunnerSettings           `toml:"runner"`
	History HistorySettings          `toml:"history"`
	Logging telemetry.LoggingConfig  `toml:"logging"`
	Metrics telemetry.MetricsConfig  `toml:"metrics"`
	Tracing telemetry.TracingConfig  `toml:"tracing"`
}

// SSHSettings are connection-wide transport defaults. Per-host
// inventory fields override them.
type SSHSettings struct {
	User                  string `toml:"user"`
	KeyPath               string `toml:"key_path"`
	UseAgent              bool   `toml:"use_agent"`
	KnownHostsPath        string `toml:"known_hosts_path"`
	StrictHostKeyChecking bool   `toml:"strict_host_key_checking"`
	ConnectTimeoutSec     int    `toml:"connect_timeout_sec"`
	CommandTimeoutSec     int    `toml:"command_timeout_sec"`
}

// RunnerSettings tune run execution.
type RunnerSettings struct {
	Forks          int `toml:"forks"`
	MaxRetries     int `toml:"max_retries"`
	TaskTimeoutSec int `toml:"task_timeout_sec"`
}

// HistorySettings control the local run history database.
type HistorySettings struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// defaultSettings returns the built-in defaults.
func defaultSettings() *Settings {
	tel := telemetry.DefaultConfig()
	return &Settings{
		SSH: SSHSettings{
			StrictHostKeyChecking: false,
			ConnectTimeoutSec:     30,
			CommandTimeoutSec:     300,
		},
		Runner: RunnerSettings{
			Forks:          5,
			MaxRetries:     3,
			TaskTimeoutSec: 300,
		},
		History: HistorySettings{
			Enabled: true,
			Path:    defaultHistoryPath(),
		},
		Logging: tel.Logging,
		Metrics: tel.Metrics,
		Tracing: tel.Tracing,
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reeve-history.db"
	}
	return filepath.Join(home, ".local", "share", "reeve", "history.db")
}

func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "reeve", "reeve.toml")
}

// loadSettings reads the settings file. An explicitly named file must
// exist; the default location is optional.
func loadSettings(path string) (*Settings, error) {
	s := defaultSettings()

	explicit := path != ""
	if !explicit {
		path = defaultSettingsPath()
	}
	if path == "" {
		return s, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("settings file not found: %s", path)
		}
		return s, nil
	}

	if _, err := toml.DecodeFile(path, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return s, nil
}

// sshConfig builds the base transport configuration.
func (s *Settings) sshConfig() transportssh.Config {
	return transportssh.Config{
		User:                  s.SSH.User,
		PrivateKeyPath:        s.SSH.KeyPath,
		UseAgent:              s.SSH.UseAgent,
		KnownHostsPath:        s.SSH.KnownHostsPath,
		StrictHostKeyChecking: s.SSH.StrictHostKeyChecking,
		ConnectTimeout:        time.Duration(s.SSH.ConnectTimeoutSec) * time.Second,
		CommandTimeout:        time.Duration(s.SSH.CommandTimeoutSec) * time.Second,
	}
}

// telemetryConfig assembles the telemetry configuration, honoring the
// global --verbose and --json flags.
func (s *Settings) telemetryConfig(version string) *telemetry.Config {
	cfg := &telemetry.Config{
		ServiceName:    "reeve",
		ServiceVersion: version,
		Logging:        s.Logging,
		Metrics:        s.Metrics,
		Tracing:        s.Tracing,
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	return cfg
}

func (s *Settings) taskTimeout() time.Duration {
	return time.Duration(s.Runner.TaskTimeoutSec) * time.Second
}
