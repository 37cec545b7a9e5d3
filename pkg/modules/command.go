package modules

import (
	"context"
	"fmt"
)

// Command runs an arbitrary remote command.
//
// Params: cmd (required), creates (path, skip when it exists), removes
// (path, skip when it is absent). Without creates/removes the module has no
// read-only probe and declares itself unverifiable: a successful apply is
// classified as changed without a second probe.
type Command struct{}

func (m *Command) Name() string { return "command" }

func (m *Command) Probe(ctx context.Context, conn Conn, req Request) (Probe, error) {
	cmd, err := req.Params.StringRequired(m.Name(), "cmd")
	if err != nil {
		return Probe{}, err
	}

	creates := req.Params.String("creates")
	removes := req.Params.String("removes")
	if creates != "" && removes != "" {
		return Probe{}, &ModuleError{Module: m.Name(), Reason: `parameters "creates" and "removes" are mutually exclusive`}
	}

	switch {
	case creates != "":
		out, err := conn.Run(ctx, "test -e "+quote(creates))
		if err != nil {
			return Probe{}, err
		}
		if out.Ok() {
			return Probe{Matches: true}, nil
		}
		return Probe{Diff: fmt.Sprintf("run %q (creates %s)", cmd, creates)}, nil

	case removes != "":
		out, err := conn.Run(ctx, "test -e "+quote(removes))
		if err != nil {
			return Probe{}, err
		}
		if !out.Ok() {
			return Probe{Matches: true}, nil
		}
		return Probe{Diff: fmt.Sprintf("run %q (removes %s)", cmd, removes)}, nil

	default:
		return Probe{Diff: fmt.Sprintf("run %q", cmd), Unverifiable: true}, nil
	}
}

func (m *Command) Apply(ctx context.Context, conn Conn, req Request, probe Probe) error {
	cmd, err := req.Params.StringRequired(m.Name(), "cmd")
	if err != nil {
		return err
	}

	out, err := conn.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !out.Ok() {
		return &ModuleError{
			Module: m.Name(),
			Reason: fmt.Sprintf("command exited %d", out.ExitCode),
			Detail: out.Stderr,
		}
	}
	return nil
}
