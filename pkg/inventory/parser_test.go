package inventory

import (
	"errors"
	"strings"
	"testing"
)

const basicInventory = `
groups:
  web:
    hosts:
      server-1:
        address: 10.0.0.1
        user: admin
      server-2:
        address: 10.0.0.2
        user: admin
        port: 2222
    vars:
      role: web
  prod:
    children: [web]
    vars:
      env: production
`

func TestParseBasicInventory(t *testing.T) {
	inv, err := NewParser().Parse([]byte(basicInventory))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if inv.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", inv.Len())
	}

	h := inv.Host("server-1")
	if h == nil {
		t.Fatal("Host(server-1) = nil")
	}
	if h.Address != "10.0.0.1" {
		t.Errorf("Address = %q, want 10.0.0.1", h.Address)
	}
	if h.Port != 22 {
		t.Errorf("Port = %d, want default 22", h.Port)
	}
	if !h.InGroup("web") || !h.InGroup("prod") {
		t.Errorf("Groups = %v, want membership in web and prod", h.Groups)
	}
	if h.Vars["role"] != "web" || h.Vars["env"] != "production" {
		t.Errorf("Vars = %v, want group vars merged through ancestry", h.Vars)
	}

	if inv.Host("server-2").Port != 2222 {
		t.Errorf("server-2 port = %d, want 2222", inv.Host("server-2").Port)
	}
}

func TestParseGroupMembership(t *testing.T) {
	inv, err := NewParser().Parse([]byte(basicInventory))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		group string
		want  int
	}{
		{"web", 2},
		{"prod", 2},
		{"all", 2},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			if got := len(inv.Group(tt.group)); got != tt.want {
				t.Errorf("Group(%q) has %d hosts, want %d", tt.group, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name: "conflicting duplicate host",
			yaml: `
groups:
  a:
    hosts:
      server-1: {address: 10.0.0.1, user: admin}
  b:
    hosts:
      server-1: {address: 10.0.0.99, user: admin}
`,
			wantMsg: "conflicting addresses",
		},
		{
			name: "cyclic group nesting",
			yaml: `
groups:
  a:
    hosts:
      h1: {address: 10.0.0.1, user: admin}
    children: [b]
  b:
    children: [a]
`,
			wantMsg: "cyclic group nesting",
		},
		{
			name: "missing connection fields",
			yaml: `
hosts:
  server-1:
    address: 10.0.0.1
`,
			wantMsg: "missing required connection fields",
		},
		{
			name:    "empty inventory",
			yaml:    `groups: {}`,
			wantMsg: "no hosts",
		},
		{
			name: "undeclared child group",
			yaml: `
groups:
  a:
    hosts:
      h1: {address: 10.0.0.1, user: admin}
    children: [ghost]
`,
			wantMsg: "not declared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want inventory error")
			}
			var invErr *Error
			if !errors.As(err, &invErr) {
				t.Fatalf("Parse() error type = %T, want *inventory.Error", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDuplicateHostSameAddressMergesGroups(t *testing.T) {
	inv, err := NewParser().Parse([]byte(`
groups:
  web:
    hosts:
      server-1: {address: 10.0.0.1, user: admin}
  db:
    hosts:
      server-1: {address: 10.0.0.1, user: admin}
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if inv.Len() != 1 {
		t.Fatalf("Len() = %d, want deduplicated single host", inv.Len())
	}
	h := inv.Host("server-1")
	if !h.InGroup("web") || !h.InGroup("db") {
		t.Errorf("Groups = %v, want both web and db", h.Groups)
	}
}

func TestLimit(t *testing.T) {
	inv, err := NewParser().Parse([]byte(basicInventory))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"", 2},
		{"all", 2},
		{"server-1", 1},
		{"server-*", 2},
		{"web", 2},
		{"nomatch", 0},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := Limit(inv.Hosts(), tt.pattern)
			if err != nil {
				t.Fatalf("Limit(%q) error = %v", tt.pattern, err)
			}
			if len(got) != tt.want {
				t.Errorf("Limit(%q) selected %d hosts, want %d", tt.pattern, len(got), tt.want)
			}
		})
	}
}
