package modules

import (
	"context"
	"fmt"
	"strings"
)

// Apt manages Debian packages with apt-specific semantics.
//
// Params: name (required), state (present|absent|latest, default present),
// update_cache (bool, default false).
type Apt struct{}

func (m *Apt) Name() string { return "apt" }

func (m *Apt) state(p Params) (string, error) {
	state := p.String("state")
	if state == "" {
		state = "present"
	}
	switch state {
	case "present", "absent", "latest":
		return state, nil
	default:
		return "", &ModuleError{Module: m.Name(), Reason: fmt.Sprintf("invalid state %q", state)}
	}
}

// policy returns the installed and candidate versions from apt-cache policy.
// Both are "(none)" normalized to empty strings.
func (m *Apt) policy(ctx context.Context, conn Conn, name string) (installed, candidate string, err error) {
	out, err := conn.Run(ctx, "apt-cache policy "+quote(name))
	if err != nil {
		return "", "", err
	}
	for _, line := range strings.Split(out.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Installed:"); ok {
			installed = normalizeVersion(v)
		}
		if v, ok := strings.CutPrefix(line, "Candidate:"); ok {
			candidate = normalizeVersion(v)
		}
	}
	return installed, candidate, nil
}

func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "(none)" {
		return ""
	}
	return v
}

func (m *Apt) Probe(ctx context.Context, conn Conn, req Request) (Probe, error) {
	name, err := req.Params.StringRequired(m.Name(), "name")
	if err != nil {
		return Probe{}, err
	}
	state, err := m.state(req.Params)
	if err != nil {
		return Probe{}, err
	}

	installed, candidate, err := m.policy(ctx, conn, name)
	if err != nil {
		return Probe{}, err
	}

	switch state {
	case "present":
		if installed != "" {
			return Probe{Matches: true}, nil
		}
		return Probe{Diff: fmt.Sprintf("install %s %s", name, candidate)}, nil

	case "absent":
		if installed == "" {
			return Probe{Matches: true}, nil
		}
		return Probe{Diff: fmt.Sprintf("remove %s %s", name, installed)}, nil

	default: // latest: fuzzy match declared as installed == candidate
		if installed != "" && installed == candidate {
			return Probe{Matches: true}, nil
		}
		return Probe{Diff: fmt.Sprintf("upgrade %s %s -> %s", name, installed, candidate)}, nil
	}
}

func (m *Apt) Apply(ctx context.Context, conn Conn, req Request, probe Probe) error {
	name, err := req.Params.StringRequired(m.Name(), "name")
	if err != nil {
		return err
	}
	state, err := m.state(req.Params)
	if err != nil {
		return err
	}

	if req.Params.Bool("update_cache", false) {
		out, err := conn.Run(ctx, "DEBIAN_FRONTEND=noninteractive apt-get update -q")
		if err != nil {
			return err
		}
		if !out.Ok() {
			return &ModuleError{Module: m.Name(), Reason: "apt-get update failed", Detail: out.Stderr}
		}
	}

	var cmd string
	switch state {
	case "absent":
		cmd = "DEBIAN_FRONTEND=noninteractive apt-get remove -y " + quote(name)
	default: // present and latest both install; latest upgrades if needed
		cmd = "DEBIAN_FRONTEND=noninteractive apt-get install -y " + quote(name)
	}

	out, err := conn.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !out.Ok() {
		return &ModuleError{
			Module: m.Name(),
			Reason: fmt.Sprintf("apt-get failed for %s (exit %d)", name, out.ExitCode),
			Detail: out.Stderr,
		}
	}
	return nil
}
