// Package runner executes playbooks against inventory hosts over a
// transport. It drives the probe/apply/reprobe protocol per task, runs
// hosts concurrently under a bounded worker pool and fails fast per
// host while leaving other hosts unaffected.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reeveops/reeve/pkg/facts"
	"github.com/reeveops/reeve/pkg/inventory"
	"github.com/reeveops/reeve/pkg/modules"
	"github.com/reeveops/reeve/pkg/play"
	"github.com/reeveops/reeve/pkg/report"
	"github.com/reeveops/reeve/pkg/telemetry"
	transportssh "github.com/reeveops/reeve/pkg/transport/ssh"
)

// Session is an established connection to a single host. Run executes
// as the login user, RunSudo escalates. Implementations are not
// required to be safe for concurrent use; the runner serializes all
// calls to a session.
type Session interface {
	Run(ctx context.Context, cmd string) (modules.Output, error)
	RunSudo(ctx context.Context, cmd string) (modules.Output, error)
	Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error
	Checksum(ctx context.Context, remotePath string) (string, error)
	Close() error
}

// Dialer establishes sessions to inventory hosts.
type Dialer interface {
	Dial(ctx context.Context, host *inventory.Host) (Session, error)
}

// Options control run execution.
type Options struct {
	// Forks is the maximum number of hosts executed concurrently.
	Forks int

	// Check enables check mode: probes run, applies do not.
	Check bool

	// Limit is an optional glob restricting targeted hosts by host or
	// group name.
	Limit string

	// MaxRetries bounds retries of transient transport failures. Zero
	// disables retries; negative selects the default.
	MaxRetries int

	// TaskTimeout bounds a single task execution, including its probes.
	TaskTimeout time.Duration

	// Logger receives structured run progress. Nil means a default logger.
	Logger *telemetry.Logger

	// Metrics receives run and task counters. Nil disables collection.
	Metrics *telemetry.Metrics

	// Tracer emits run, host and task spans. Nil disables tracing.
	Tracer *telemetry.Tracer
}

// Runner executes playbooks.
type Runner struct {
	dialer   Dialer
	registry *modules.Registry
	opts     Options

	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// New creates a runner. Unset option fields get working defaults;
// MaxRetries zero is an explicit "no retries".
func New(dialer Dialer, registry *modules.Registry, opts Options) *Runner {
	if opts.Forks <= 0 {
		opts.Forks = 5
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 3
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = telemetry.FromContext(context.Background())
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	return &Runner{
		dialer:   dialer,
		registry: registry,
		opts:     opts,
		log:      log.NewComponentLogger("runner"),
		metrics:  metrics,
	}
}

// runState tracks per-host outcomes across the plays of one run.
// A host failed in an earlier play stays failed for the rest of the run.
type runState struct {
	mu     sync.Mutex
	facts  map[string]map[string]string
	failed map[string]bool
}

func newRunState() *runState {
	return &runState{
		facts:  make(map[string]map[string]string),
		failed: make(map[string]bool),
	}
}

func (s *runState) hostFailed(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[host]
}

func (s *runState) markFailed(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[host] = true
}

func (s *runState) failedHosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := make([]string, 0, len(s.failed))
	for h := range s.failed {
		hosts = append(hosts, h)
	}
	return hosts
}

func (s *runState) hostFacts(host string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facts[host]
}

func (s *runState) setHostFacts(host string, f map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[host] = f
}

// Run executes every play of the playbook in declaration order and
// returns the aggregated report. A report is returned even when the
// run partially fails; the accompanying error is then a
// *PartialRunError. Other errors indicate the run could not start at
// all (for example an unknown target group).
func (r *Runner) Run(ctx context.Context, inv *inventory.Inventory, pb *play.Playbook) (*report.RunReport, error) {
	runID := uuid.New().String()
	startedAt := time.Now()

	mode := "apply"
	if r.opts.Check {
		mode = "check"
	}

	// Resolve targets up front so an unknown group aborts before any
	// host is touched.
	targets := make([][]*inventory.Host, len(pb.Plays))
	for i := range pb.Plays {
		pl := &pb.Plays[i]
		if !inv.HasGroup(pl.Hosts) {
			return nil, &play.PlanError{
				Play:   pl.Name,
				Reason: fmt.Sprintf("unknown target group %q", pl.Hosts),
			}
		}
		hosts := inv.Group(pl.Hosts)
		if r.opts.Limit != "" {
			hosts, err := inventory.Limit(hosts, r.opts.Limit)
			if err != nil {
				return nil, err
			}
			targets[i] = hosts
			continue
		}
		targets[i] = hosts
	}

	r.metrics.RecordRunStarted(mode)
	log := r.log.WithRunID(runID)
	log.Infof("run started: playbook=%s plays=%d mode=%s", pb.Source, len(pb.Plays), mode)

	if r.opts.Tracer != nil {
		spanCtx, span := r.opts.Tracer.StartRunSpan(ctx, runID, r.opts.Check)
		ctx = spanCtx
		defer span.End()
	}

	rec := report.NewRecorder()
	st := newRunState()

	for i := range pb.Plays {
		r.runPlay(ctx, runID, &pb.Plays[i], targets[i], rec, st)
	}

	rep := report.Build(runID, pb.Source, r.opts.Check, startedAt, rec)

	status := "ok"
	var err error
	if failed := st.failedHosts(); len(failed) > 0 {
		status = "failed"
		err = &PartialRunError{RunID: runID, FailedHosts: failed}
	}
	r.metrics.RecordRunCompleted(status, time.Since(startedAt))
	log.Infof("run finished: status=%s changed=%d failed=%d",
		status, rep.Summary.Changed, rep.Summary.Failed)

	return rep, err
}

// runPlay executes one play on its target hosts under the fork limit.
func (r *Runner) runPlay(ctx context.Context, runID string, pl *play.Play, hosts []*inventory.Host, rec *report.Recorder, st *runState) {
	sem := make(chan struct{}, r.opts.Forks)
	var wg sync.WaitGroup

	for _, host := range hosts {
		wg.Add(1)
		go func(h *inventory.Host) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				r.recordHostSkipped(pl, h.Name, rec, ctx.Err().Error())
				return
			}
			defer func() { <-sem }()
			r.runHost(ctx, runID, pl, h, rec, st)
		}(host)
	}

	wg.Wait()
}

// runHost executes one play's tasks sequentially on a single host.
func (r *Runner) runHost(ctx context.Context, runID string, pl *play.Play, host *inventory.Host, rec *report.Recorder, st *runState) {
	log := r.log.WithRunID(runID).WithHost(host.Name)

	if st.hostFailed(host.Name) {
		r.recordHostSkippedFailure(pl, host.Name, rec)
		return
	}

	r.metrics.HostStarted()
	defer r.metrics.HostFinished()

	if r.opts.Tracer != nil {
		hostCtx, span := r.opts.Tracer.StartHostSpan(ctx, host.Name)
		ctx = hostCtx
		defer span.End()
	}

	sess, err := r.connect(ctx, host)
	if err != nil {
		log.WithError(err).Error("connection failed")
		r.metrics.RecordError("transport")
		st.markFailed(host.Name)
		r.recordHostUnreachable(pl, host.Name, rec, err)
		return
	}
	defer sess.Close()

	hfacts, err := r.hostFacts(ctx, host, sess, st)
	if err != nil {
		log.WithError(err).Error("fact gathering failed")
		r.metrics.RecordError("transport")
		st.markFailed(host.Name)
		r.recordHostUnreachable(pl, host.Name, rec, err)
		return
	}

	for i := range pl.Tasks {
		task := &pl.Tasks[i]
		if st.hostFailed(host.Name) {
			rec.Append(r.newResult(pl, task, host.Name, report.StatusSkippedFailure, "earlier task failed", time.Now(), 0))
			continue
		}

		started := time.Now()
		status, message := r.runTask(ctx, pl, task, host, sess, hfacts)
		duration := time.Since(started)

		rec.Append(r.newResult(pl, task, host.Name, status, message, started, duration))
		r.metrics.RecordTaskExecution(task.Module, string(status), duration)

		switch status {
		case report.StatusFailed:
			log.WithTask(pl.Name, task.Name, task.Module).Errorf("task failed: %s", message)
			st.markFailed(host.Name)
		case report.StatusChanged:
			log.WithTask(pl.Name, task.Name, task.Module).Info("task changed")
		default:
			log.WithTask(pl.Name, task.Name, task.Module).Debugf("task %s", status)
		}
	}
}

// runTask evaluates the task guard and, when it holds, executes the
// module protocol with transient-failure retries.
func (r *Runner) runTask(ctx context.Context, pl *play.Play, task *play.Task, host *inventory.Host, sess Session, hfacts map[string]string) (report.Status, string) {
	if r.opts.Tracer != nil {
		taskCtx, span := r.opts.Tracer.StartTaskSpan(ctx, host.Name, task.Name, task.Module)
		ctx = taskCtx
		defer span.End()
	}

	if task.When != nil {
		ok, err := task.When.Eval(hfacts)
		if err != nil {
			r.metrics.RecordError("plan")
			return report.StatusFailed, err.Error()
		}
		if !ok {
			return report.StatusSkipped, "condition not met"
		}
	}

	mod, err := r.registry.Get(task.Module)
	if err != nil {
		r.metrics.RecordError("plan")
		return report.StatusFailed, err.Error()
	}

	conn := &taskConn{sess: sess, become: task.Become || pl.Become}
	req := modules.Request{Params: modules.Params(task.Params), Facts: hfacts}

	for attempt := 0; ; attempt++ {
		taskCtx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
		status, message, err := r.converge(taskCtx, mod, conn, req)
		cancel()

		if err == nil {
			return status, message
		}
		if errors.Is(err, context.DeadlineExceeded) {
			r.metrics.RecordError("timeout")
			return report.StatusFailed, fmt.Sprintf("timed out after %s", r.opts.TaskTimeout)
		}
		if !retryable(err) || attempt >= r.opts.MaxRetries {
			r.metrics.RecordError(errorClass(err))
			return report.StatusFailed, err.Error()
		}

		r.metrics.RecordTransportRetry(task.Module)
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return report.StatusFailed, ctx.Err().Error()
		}
	}
}

// converge drives the probe/apply/reprobe protocol for one module
// invocation. A returned error is an execution failure subject to
// retry classification; a StatusFailed with nil error is terminal.
func (r *Runner) converge(ctx context.Context, mod modules.Module, conn modules.Conn, req modules.Request) (report.Status, string, error) {
	probe, err := mod.Probe(ctx, conn, req)
	if err != nil {
		return report.StatusFailed, "", err
	}
	if probe.Matches {
		return report.StatusUnchanged, "", nil
	}

	if r.opts.Check {
		return report.StatusChanged, probe.Diff, nil
	}

	if err := mod.Apply(ctx, conn, req, probe); err != nil {
		return report.StatusFailed, "", err
	}

	// Modules that cannot observe their own effect declare the probe
	// unverifiable; a successful apply then counts as changed.
	if probe.Unverifiable {
		return report.StatusChanged, probe.Diff, nil
	}

	after, err := mod.Probe(ctx, conn, req)
	if err != nil {
		return report.StatusFailed, "", err
	}
	if !after.Matches {
		msg := fmt.Sprintf("apply did not converge: %s", after.Diff)
		return report.StatusFailed, msg, nil
	}
	return report.StatusChanged, probe.Diff, nil
}

// connect dials the host, retrying transient failures with backoff.
func (r *Runner) connect(ctx context.Context, host *inventory.Host) (Session, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		sess, err := r.dialer.Dial(ctx, host)
		r.metrics.RecordConnectAttempt(err == nil)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if !retryable(err) || attempt >= r.opts.MaxRetries {
			break
		}
		r.metrics.RecordTransportRetry("connect")
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// hostFacts gathers facts on first contact and caches them for the
// rest of the run. Inventory host vars override discovered values.
func (r *Runner) hostFacts(ctx context.Context, host *inventory.Host, sess Session, st *runState) (map[string]string, error) {
	if cached := st.hostFacts(host.Name); cached != nil {
		return cached, nil
	}
	discovered, err := facts.Gather(ctx, &taskConn{sess: sess})
	if err != nil {
		return nil, err
	}
	merged := facts.Merge(discovered, host.Vars)
	st.setHostFacts(host.Name, merged)
	return merged, nil
}

func (r *Runner) newResult(pl *play.Play, task *play.Task, host string, status report.Status, message string, started time.Time, duration time.Duration) report.Result {
	return report.Result{
		ID:           uuid.New().String(),
		Host:         host,
		Play:         pl.Name,
		PlayPosition: pl.Position,
		Task:         task.Name,
		Module:       task.Module,
		Position:     task.Position,
		Status:       status,
		Message:      message,
		CheckMode:    r.opts.Check,
		StartedAt:    started,
		Duration:     duration,
	}
}

// recordHostUnreachable marks the first task failed with the transport
// error and the rest of the play skipped.
func (r *Runner) recordHostUnreachable(pl *play.Play, host string, rec *report.Recorder, err error) {
	now := time.Now()
	for i := range pl.Tasks {
		task := &pl.Tasks[i]
		if i == 0 {
			rec.Append(r.newResult(pl, task, host, report.StatusFailed, err.Error(), now, 0))
			continue
		}
		rec.Append(r.newResult(pl, task, host, report.StatusSkippedFailure, "host unreachable", now, 0))
	}
}

// recordHostSkippedFailure marks every task of the play as skipped
// because the host failed in an earlier play.
func (r *Runner) recordHostSkippedFailure(pl *play.Play, host string, rec *report.Recorder) {
	now := time.Now()
	for i := range pl.Tasks {
		rec.Append(r.newResult(pl, &pl.Tasks[i], host, report.StatusSkippedFailure, "host failed in earlier play", now, 0))
	}
}

// recordHostSkipped marks every task of the play skipped with the given
// reason (run cancelled before the host was scheduled).
func (r *Runner) recordHostSkipped(pl *play.Play, host string, rec *report.Recorder, reason string) {
	now := time.Now()
	for i := range pl.Tasks {
		rec.Append(r.newResult(pl, &pl.Tasks[i], host, report.StatusSkippedFailure, reason, now, 0))
	}
}

// taskConn adapts a Session to the module connection interface,
// applying privilege escalation when the task requests it. Escalation
// covers command execution only; file transfer runs as the login user.
type taskConn struct {
	sess   Session
	become bool
}

func (c *taskConn) Run(ctx context.Context, cmd string) (modules.Output, error) {
	if c.become {
		return c.sess.RunSudo(ctx, cmd)
	}
	return c.sess.Run(ctx, cmd)
}

func (c *taskConn) Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	return c.sess.Upload(ctx, data, remotePath, mode)
}

func (c *taskConn) Checksum(ctx context.Context, remotePath string) (string, error) {
	return c.sess.Checksum(ctx, remotePath)
}

// errorClass buckets an execution error for metrics.
func errorClass(err error) string {
	var modErr *modules.ModuleError
	if errors.As(err, &modErr) {
		return "module"
	}
	var transErr *transportssh.TransportError
	if errors.As(err, &transErr) {
		return "transport"
	}
	return "internal"
}
