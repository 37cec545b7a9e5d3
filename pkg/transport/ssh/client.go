package ssh

import (
	"fmt"
	"sync"
	"time"

	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport over a single SSH connection.
type Client struct {
	config *Config

	connMu      sync.RWMutex
	client      *ssh.Client
	isConnected bool
	connectedAt time.Time
}

// NewClient creates a new SSH transport for the configured host.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.isConnected && c.client != nil {
		if c.healthCheck() == nil {
			return nil
		}
		log.Warn().Str("host", c.config.Host).Msg("existing connection is dead, reconnecting")
		_ = c.client.Close()
		c.isConnected = false
	}

	clientConfig, err := c.config.BuildClientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Host:        c.config.Address(),
			Err:         err,
			IsAuthError: true,
		}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		// The dial goroutine may still establish the connection after
		// cancellation; reap it so the connection does not leak.
		go func() {
			select {
			case client := <-connChan:
				_ = client.Close()
			case <-errChan:
			}
		}()
		return &TransportError{
			Op:          "connect",
			Host:        address,
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return &TransportError{
			Op:          "connect",
			Host:        address,
			Err:         err,
			IsTemporary: true,
		}
	case client := <-connChan:
		c.client = client
		c.isConnected = true
		c.connectedAt = time.Now()

		if c.config.KeepAliveInterval > 0 {
			go c.keepAlive()
		}

		log.Debug().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Disconnect closes the SSH connection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	c.isConnected = false

	if err != nil {
		return &TransportError{Op: "disconnect", Host: c.config.Address(), Err: err}
	}
	return nil
}

// IsConnected reports whether the transport has an active connection.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.isConnected
}

// healthCheck runs a trivial command to verify the connection (lock held).
func (c *Client) healthCheck() error {
	session, err := c.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run("true")
}

// keepAlive sends periodic keep-alive requests until the connection closes.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	failures := 0
	for range ticker.C {
		c.connMu.RLock()
		connected := c.isConnected && c.client != nil
		client := c.client
		c.connMu.RUnlock()
		if !connected {
			return
		}

		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			failures++
			log.Warn().Err(err).Int("failures", failures).Str("host", c.config.Host).
				Msg("keep-alive failed")
			if failures >= 3 {
				return
			}
		} else {
			failures = 0
		}
	}
}

// getClient returns the underlying SSH client for the executor and uploader.
func (c *Client) getClient() (*ssh.Client, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return nil, &TransportError{
			Op:   "session",
			Host: c.config.Address(),
			Err:  fmt.Errorf("not connected"),
		}
	}
	return c.client, nil
}
