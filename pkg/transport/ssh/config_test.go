package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")

	if config.Host != "example.com" {
		t.Errorf("expected host 'example.com', got '%s'", config.Host)
	}
	if config.User != "testuser" {
		t.Errorf("expected user 'testuser', got '%s'", config.User)
	}
	if config.Port != 22 {
		t.Errorf("expected port 22, got %d", config.Port)
	}
	if config.ConnectTimeout != 30*time.Second {
		t.Errorf("expected connect timeout 30s, got %v", config.ConnectTimeout)
	}
	if config.CommandTimeout != 5*time.Minute {
		t.Errorf("expected command timeout 5m, got %v", config.CommandTimeout)
	}
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		c := DefaultConfig("example.com", "testuser")
		c.Password = "secret"
		return c
	}

	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid password config",
			modifyFunc:  func(c *Config) {},
			expectError: false,
		},
		{
			name:        "missing host",
			modifyFunc:  func(c *Config) { c.Host = "" },
			expectError: true,
			errorMsg:    "host is required",
		},
		{
			name:        "invalid port",
			modifyFunc:  func(c *Config) { c.Port = 0 },
			expectError: true,
			errorMsg:    "invalid port",
		},
		{
			name:        "missing user",
			modifyFunc:  func(c *Config) { c.User = "" },
			expectError: true,
			errorMsg:    "user is required",
		},
		{
			name:        "zero connect timeout",
			modifyFunc:  func(c *Config) { c.ConnectTimeout = 0 },
			expectError: true,
			errorMsg:    "connect timeout",
		},
		{
			name: "missing key file",
			modifyFunc: func(c *Config) {
				c.Password = ""
				c.PrivateKeyPath = "/nonexistent/key"
			},
			expectError: true,
			errorMsg:    "not found",
		},
		{
			name: "agent auth needs no key",
			modifyFunc: func(c *Config) {
				c.Password = ""
				c.UseAgent = true
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base()
			tt.modifyFunc(config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Validate() error = nil, want error")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error = %q, want substring %q", err, tt.errorMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

// writeTestKey generates an unencrypted ed25519 private key file.
func writeTestKey(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return keyPath
}

func TestBuildClientConfigWithKey(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")
	config.PrivateKeyPath = writeTestKey(t)

	clientConfig, err := config.BuildClientConfig()
	if err != nil {
		t.Fatalf("BuildClientConfig() error = %v", err)
	}

	if clientConfig.User != "testuser" {
		t.Errorf("User = %q, want testuser", clientConfig.User)
	}
	if len(clientConfig.Auth) != 1 {
		t.Errorf("Auth methods = %d, want 1", len(clientConfig.Auth))
	}
	if clientConfig.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", clientConfig.Timeout)
	}
}

func TestBuildClientConfigWithPassword(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")
	config.Password = "secret"

	clientConfig, err := config.BuildClientConfig()
	if err != nil {
		t.Fatalf("BuildClientConfig() error = %v", err)
	}

	// Password plus keyboard-interactive fallback.
	if len(clientConfig.Auth) < 2 {
		t.Errorf("Auth methods = %d, want at least 2", len(clientConfig.Auth))
	}
}

func TestBuildClientConfigNoCredentials(t *testing.T) {
	config := &Config{
		Host:           "example.com",
		Port:           22,
		User:           "testuser",
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
	}

	if _, err := config.BuildClientConfig(); err == nil {
		t.Fatal("BuildClientConfig() error = nil, want no-auth error")
	}
}

func TestTransportError(t *testing.T) {
	err := &TransportError{
		Op:          "connect",
		Host:        "example.com:22",
		Err:         os.ErrDeadlineExceeded,
		IsTemporary: true,
	}

	if !err.Temporary() {
		t.Error("Temporary() = false, want true")
	}
	if !strings.Contains(err.Error(), "connect") || !strings.Contains(err.Error(), "example.com:22") {
		t.Errorf("Error() = %q, want op and host", err.Error())
	}
}

func TestAddress(t *testing.T) {
	config := DefaultConfig("example.com", "u")
	if config.Address() != "example.com:22" {
		t.Errorf("Address() = %q, want example.com:22", config.Address())
	}

	config.Port = 2222
	if config.Address() != "example.com:2222" {
		t.Errorf("Address() = %q, want example.com:2222", config.Address())
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/etc/nginx/nginx.conf", "'/etc/nginx/nginx.conf'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
