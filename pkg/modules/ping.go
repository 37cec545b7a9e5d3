package modules

import "context"

// Ping verifies the execution channel works. It never mutates the host, so
// its probe always matches once a command round-trip succeeds.
type Ping struct{}

func (m *Ping) Name() string { return "ping" }

func (m *Ping) Probe(ctx context.Context, conn Conn, req Request) (Probe, error) {
	out, err := conn.Run(ctx, "true")
	if err != nil {
		return Probe{}, err
	}
	if !out.Ok() {
		return Probe{}, &ModuleError{Module: m.Name(), Reason: "remote shell unusable", Detail: out.Stderr}
	}
	return Probe{Matches: true}, nil
}

func (m *Ping) Apply(ctx context.Context, conn Conn, req Request, probe Probe) error {
	// Probe always matches; Apply is unreachable.
	return nil
}
