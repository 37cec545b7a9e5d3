package modules

import (
	"context"
	"fmt"
	"strings"
)

// Service manages a systemd unit.
//
// Params: name (required), state (started|stopped, default started),
// enabled (bool, optional; unset leaves boot enablement untouched).
type Service struct{}

func (m *Service) Name() string { return "service" }

func (m *Service) desired(p Params) (state string, enabled *bool, err error) {
	state = p.String("state")
	if state == "" {
		state = "started"
	}
	if state != "started" && state != "stopped" {
		return "", nil, &ModuleError{Module: m.Name(), Reason: fmt.Sprintf("invalid state %q", state)}
	}
	if v, ok := p["enabled"].(bool); ok {
		enabled = &v
	}
	return state, enabled, nil
}

// current reads the unit's active and enabled status.
func (m *Service) current(ctx context.Context, conn Conn, name string) (active, enabled bool, err error) {
	out, err := conn.Run(ctx, "systemctl is-active "+quote(name))
	if err != nil {
		return false, false, err
	}
	active = strings.TrimSpace(out.Stdout) == "active"

	out, err = conn.Run(ctx, "systemctl is-enabled "+quote(name))
	if err != nil {
		return false, false, err
	}
	enabled = strings.TrimSpace(out.Stdout) == "enabled"
	return active, enabled, nil
}

func (m *Service) Probe(ctx context.Context, conn Conn, req Request) (Probe, error) {
	name, err := req.Params.StringRequired(m.Name(), "name")
	if err != nil {
		return Probe{}, err
	}
	state, wantEnabled, err := m.desired(req.Params)
	if err != nil {
		return Probe{}, err
	}

	active, enabled, err := m.current(ctx, conn, name)
	if err != nil {
		return Probe{}, err
	}

	var diffs []string
	if active != (state == "started") {
		if state == "started" {
			diffs = append(diffs, "start "+name)
		} else {
			diffs = append(diffs, "stop "+name)
		}
	}
	if wantEnabled != nil && enabled != *wantEnabled {
		if *wantEnabled {
			diffs = append(diffs, "enable "+name)
		} else {
			diffs = append(diffs, "disable "+name)
		}
	}

	if len(diffs) == 0 {
		return Probe{Matches: true}, nil
	}
	return Probe{Diff: strings.Join(diffs, ", ")}, nil
}

func (m *Service) Apply(ctx context.Context, conn Conn, req Request, probe Probe) error {
	name, err := req.Params.StringRequired(m.Name(), "name")
	if err != nil {
		return err
	}
	state, wantEnabled, err := m.desired(req.Params)
	if err != nil {
		return err
	}

	active, enabled, err := m.current(ctx, conn, name)
	if err != nil {
		return err
	}

	var cmds []string
	if active != (state == "started") {
		if state == "started" {
			cmds = append(cmds, "systemctl start "+quote(name))
		} else {
			cmds = append(cmds, "systemctl stop "+quote(name))
		}
	}
	if wantEnabled != nil && enabled != *wantEnabled {
		if *wantEnabled {
			cmds = append(cmds, "systemctl enable "+quote(name))
		} else {
			cmds = append(cmds, "systemctl disable "+quote(name))
		}
	}

	for _, cmd := range cmds {
		out, err := conn.Run(ctx, cmd)
		if err != nil {
			return err
		}
		if !out.Ok() {
			return &ModuleError{
				Module: m.Name(),
				Reason: fmt.Sprintf("%q failed (exit %d)", cmd, out.ExitCode),
				Detail: out.Stderr,
			}
		}
	}
	return nil
}
