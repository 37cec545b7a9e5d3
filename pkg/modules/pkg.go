package modules

import (
	"context"
	"fmt"
)

// Package manages a package across package managers. The manager is taken
// from the "manager" parameter or the host's pkg_mgr fact.
//
// Params: name (required), state (present|absent, default present),
// manager (apt|dnf|yum, optional).
type Package struct{}

func (m *Package) Name() string { return "package" }

// manager resolves the package manager for this invocation.
func (m *Package) manager(req Request) (string, error) {
	mgr := req.Params.String("manager")
	if mgr == "" {
		mgr = req.Facts["pkg_mgr"]
	}
	switch mgr {
	case "apt", "dnf", "yum":
		return mgr, nil
	case "":
		return "", &ModuleError{Module: m.Name(), Reason: "no package manager configured and pkg_mgr fact unavailable"}
	default:
		return "", &ModuleError{Module: m.Name(), Reason: fmt.Sprintf("unsupported package manager %q", mgr)}
	}
}

func desiredState(module string, p Params) (string, error) {
	state := p.String("state")
	if state == "" {
		state = "present"
	}
	if state != "present" && state != "absent" {
		return "", &ModuleError{Module: module, Reason: fmt.Sprintf("invalid state %q", state)}
	}
	return state, nil
}

// installed checks whether the package is installed under the given manager.
func pkgInstalled(ctx context.Context, conn Conn, mgr, name string) (bool, error) {
	var cmd string
	switch mgr {
	case "apt":
		cmd = "dpkg-query -W -f='${Status}' " + quote(name)
	default:
		cmd = "rpm -q " + quote(name)
	}

	out, err := conn.Run(ctx, cmd)
	if err != nil {
		return false, err
	}
	if mgr == "apt" {
		return out.Ok() && out.Stdout == "install ok installed", nil
	}
	return out.Ok(), nil
}

func (m *Package) Probe(ctx context.Context, conn Conn, req Request) (Probe, error) {
	name, err := req.Params.StringRequired(m.Name(), "name")
	if err != nil {
		return Probe{}, err
	}
	state, err := desiredState(m.Name(), req.Params)
	if err != nil {
		return Probe{}, err
	}
	mgr, err := m.manager(req)
	if err != nil {
		return Probe{}, err
	}

	installed, err := pkgInstalled(ctx, conn, mgr, name)
	if err != nil {
		return Probe{}, err
	}

	if installed == (state == "present") {
		return Probe{Matches: true}, nil
	}
	if state == "present" {
		return Probe{Diff: fmt.Sprintf("install %s via %s", name, mgr)}, nil
	}
	return Probe{Diff: fmt.Sprintf("remove %s via %s", name, mgr)}, nil
}

func (m *Package) Apply(ctx context.Context, conn Conn, req Request, probe Probe) error {
	name, err := req.Params.StringRequired(m.Name(), "name")
	if err != nil {
		return err
	}
	state, err := desiredState(m.Name(), req.Params)
	if err != nil {
		return err
	}
	mgr, err := m.manager(req)
	if err != nil {
		return err
	}

	var cmd string
	switch {
	case mgr == "apt" && state == "present":
		cmd = "DEBIAN_FRONTEND=noninteractive apt-get install -y " + quote(name)
	case mgr == "apt":
		cmd = "DEBIAN_FRONTEND=noninteractive apt-get remove -y " + quote(name)
	case state == "present":
		cmd = mgr + " install -y " + quote(name)
	default:
		cmd = mgr + " remove -y " + quote(name)
	}

	out, err := conn.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !out.Ok() {
		return &ModuleError{
			Module: m.Name(),
			Reason: fmt.Sprintf("%s failed for %s (exit %d)", mgr, name, out.ExitCode),
			Detail: out.Stderr,
		}
	}
	return nil
}
