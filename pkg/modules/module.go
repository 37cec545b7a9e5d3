// Package modules implements the idempotent module kinds dispatched by task
// tag: ping, package, apt, service, copy, command.
//
// Each module is a capability pair {Probe, Apply}. Probe is read-only and
// decides whether the host already satisfies the desired parameters; Apply
// performs the mutation. The runner drives the two-phase
// probe/apply/re-probe protocol around them.
package modules

import (
	"context"
	"fmt"
	"strings"
)

// Output is the outcome of one remote command as seen by a module.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the command exited zero.
func (o Output) Ok() bool {
	return o.ExitCode == 0
}

// Conn is the remote execution channel handed to modules. Privilege
// escalation, retries and timeouts are the caller's concern; modules see a
// plain execute/upload surface.
type Conn interface {
	// Run executes a command. Non-zero exits are results, not errors.
	Run(ctx context.Context, cmd string) (Output, error)

	// Upload writes data to a remote path with the given mode.
	Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error

	// Checksum returns the SHA256 of a remote file, or "" if absent.
	Checksum(ctx context.Context, remotePath string) (string, error)
}

// Request carries a module invocation's inputs.
type Request struct {
	// Params is the task's parameter mapping.
	Params Params

	// Facts is the host's immutable fact mapping.
	Facts map[string]string
}

// Probe is the result of a read-only state check.
type Probe struct {
	// Matches is true when current state already equals desired state.
	Matches bool

	// Diff describes what Apply would change.
	Diff string

	// Unverifiable marks modules that cannot re-check their effect (e.g. a
	// bare command without creates/removes). Apply success is then
	// classified as changed without a second probe.
	Unverifiable bool
}

// Module is one idempotent operation kind.
type Module interface {
	// Name returns the module kind tag.
	Name() string

	// Probe checks whether the host already satisfies req. It must not
	// mutate remote state.
	Probe(ctx context.Context, conn Conn, req Request) (Probe, error)

	// Apply reconciles the host toward the desired parameters, using the
	// probe's diff where helpful.
	Apply(ctx context.Context, conn Conn, req Request, probe Probe) error
}

// ModuleError is a deterministic reconciliation failure reported by a module.
// It is surfaced as a failed result and never retried.
type ModuleError struct {
	// Module is the module kind tag.
	Module string

	// Reason describes the failure.
	Reason string

	// Detail carries remote error output, if any.
	Detail string
}

func (e *ModuleError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("module %s: %s: %s", e.Module, e.Reason, e.Detail)
	}
	return fmt.Sprintf("module %s: %s", e.Module, e.Reason)
}

// Params is a task parameter mapping with typed accessors.
type Params map[string]any

// String returns the string parameter or "" when unset.
func (p Params) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// StringRequired returns the string parameter or an error when missing.
func (p Params) StringRequired(module, key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", &ModuleError{Module: module, Reason: fmt.Sprintf("parameter %q is required", key)}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &ModuleError{Module: module, Reason: fmt.Sprintf("parameter %q must be a non-empty string", key)}
	}
	return s, nil
}

// Bool returns the boolean parameter or def when unset.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// quote single-quotes a string for safe interpolation into sh commands.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
