package ssh

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// stallListener accepts connections and never speaks, so an SSH
// handshake against it blocks until the dialer gives up.
func stallListener(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestConnectHonorsContextCancellation(t *testing.T) {
	_, port := stallListener(t)

	client, err := NewClient(&Config{
		Host:           "127.0.0.1",
		Port:           port,
		User:           "root",
		Password:       "secret",
		ConnectTimeout: 30 * time.Second,
		CommandTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = client.Connect(ctx)
	if err == nil {
		t.Fatal("Connect succeeded against a stalled server")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Connect took %s, want prompt return after cancellation", elapsed)
	}

	var transErr *TransportError
	if !errors.As(err, &transErr) {
		t.Fatalf("error = %T, want *TransportError", err)
	}
	if !transErr.Temporary() {
		t.Error("cancellation error not classified temporary")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
	if client.IsConnected() {
		t.Error("client reports connected after cancelled Connect")
	}
}
