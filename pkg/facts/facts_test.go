package facts

import (
	"context"
	"strings"
	"testing"

	"github.com/reeveops/reeve/pkg/modules"
)

type scriptedConn struct {
	outputs map[string]modules.Output
}

func (c *scriptedConn) Run(ctx context.Context, cmd string) (modules.Output, error) {
	for prefix, out := range c.outputs {
		if strings.HasPrefix(cmd, prefix) {
			return out, nil
		}
	}
	return modules.Output{ExitCode: 1}, nil
}

func (c *scriptedConn) Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	return nil
}

func (c *scriptedConn) Checksum(ctx context.Context, remotePath string) (string, error) {
	return "", nil
}

const ubuntuOSRelease = `NAME="Ubuntu"
VERSION="22.04.4 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
VERSION_ID="22.04"`

func TestGather(t *testing.T) {
	conn := &scriptedConn{outputs: map[string]modules.Output{
		"cat /etc/os-release": {Stdout: ubuntuOSRelease},
		"uname -r":            {Stdout: "5.15.0-105-generic"},
		"uname -m":            {Stdout: "x86_64"},
		"hostname":            {Stdout: "server-1"},
		"command -v apt":      {Stdout: "/usr/bin/apt"},
	}}

	got, err := Gather(context.Background(), conn)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]string{
		KeyOSFamily:            "debian",
		KeyDistribution:        "ubuntu",
		KeyDistributionVersion: "22.04",
		KeyKernel:              "5.15.0-105-generic",
		KeyArch:                "x86_64",
		KeyHostname:            "server-1",
		KeyPkgMgr:              "apt",
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("facts[%s] = %q, want %q", key, got[key], value)
		}
	}
}

func TestParseOSReleaseFamilies(t *testing.T) {
	tests := []struct {
		name       string
		osRelease  string
		wantFamily string
		wantDistro string
	}{
		{
			name:       "debian directly",
			osRelease:  "ID=debian\nVERSION_ID=\"12\"",
			wantFamily: "debian",
			wantDistro: "debian",
		},
		{
			name:       "rocky via id_like",
			osRelease:  "ID=rocky\nID_LIKE=\"rhel centos fedora\"\nVERSION_ID=\"9.3\"",
			wantFamily: "redhat",
			wantDistro: "rocky",
		},
		{
			name:       "unknown distro resolves family from id_like",
			osRelease:  "ID=pop\nID_LIKE=\"ubuntu debian\"",
			wantFamily: "debian",
			wantDistro: "pop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := make(map[string]string)
			parseOSRelease(tt.osRelease, facts)

			if facts[KeyOSFamily] != tt.wantFamily {
				t.Errorf("os_family = %q, want %q", facts[KeyOSFamily], tt.wantFamily)
			}
			if facts[KeyDistribution] != tt.wantDistro {
				t.Errorf("distribution = %q, want %q", facts[KeyDistribution], tt.wantDistro)
			}
		})
	}
}

func TestMergeHostVarsWin(t *testing.T) {
	discovered := map[string]string{KeyOSFamily: "debian", KeyArch: "x86_64"}
	hostVars := map[string]string{KeyOSFamily: "redhat", "role": "web"}

	merged := Merge(discovered, hostVars)

	if merged[KeyOSFamily] != "redhat" {
		t.Errorf("os_family = %q, want host var to win", merged[KeyOSFamily])
	}
	if merged[KeyArch] != "x86_64" || merged["role"] != "web" {
		t.Errorf("merged = %v, want union of both maps", merged)
	}

	// Merge copies; mutating the result must not touch the inputs.
	merged["new"] = "x"
	if _, ok := discovered["new"]; ok {
		t.Error("Merge() aliases its input map")
	}
}
