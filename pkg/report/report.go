// Package report aggregates per-host, per-task outcomes into a deterministic
// run summary.
package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status is the terminal classification of one (host, task) pair.
type Status string

const (
	// StatusSkipped means the task's guard was unsatisfied on the host.
	StatusSkipped Status = "skipped"

	// StatusUnchanged means the host already satisfied the desired state.
	StatusUnchanged Status = "unchanged"

	// StatusChanged means the module mutated the host into the desired state.
	StatusChanged Status = "changed"

	// StatusFailed means the desired state could not be reached.
	StatusFailed Status = "failed"

	// StatusSkippedFailure means an earlier task on the same host failed and
	// this task was never attempted.
	StatusSkippedFailure Status = "skipped-due-to-failure"
)

// Result records the outcome of one task on one host.
type Result struct {
	// ID is the unique result identifier.
	ID string `json:"id"`

	// Host is the host name.
	Host string `json:"host"`

	// Play is the play name.
	Play string `json:"play"`

	// PlayPosition is the play's declaration order within the playbook.
	// Positions restart per play, so ordering keys on (PlayPosition, Position).
	PlayPosition int `json:"play_position"`

	// Task is the task name.
	Task string `json:"task"`

	// Module is the module kind tag.
	Module string `json:"module"`

	// Position is the task's declaration order within its play.
	Position int `json:"position"`

	// Status is the terminal classification.
	Status Status `json:"status"`

	// Message carries the module's diff or error detail.
	Message string `json:"message,omitempty"`

	// CheckMode marks results produced without mutating the host.
	CheckMode bool `json:"check_mode,omitempty"`

	// StartedAt is when the task started on this host.
	StartedAt time.Time `json:"started_at"`

	// Duration is the task's wall-clock time.
	Duration time.Duration `json:"duration"`
}

// Summary is the global status count aggregate.
type Summary struct {
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
}

// Recorder is the concurrency-safe result sink shared across host workers.
// It is the only state shared between workers.
type Recorder struct {
	mu      sync.Mutex
	results []Result
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append records one result. Safe for concurrent use.
func (r *Recorder) Append(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// Snapshot returns a copy of all recorded results.
func (r *Recorder) Snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

// RunReport is the final aggregate of one run.
type RunReport struct {
	// RunID is the unique run identifier.
	RunID string `json:"run_id"`

	// Playbook is the playbook source path.
	Playbook string `json:"playbook"`

	// CheckMode marks probe-only runs.
	CheckMode bool `json:"check_mode"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// Hosts maps host names to their ordered result lists.
	Hosts map[string][]Result `json:"hosts"`

	// Summary is the global status count aggregate.
	Summary Summary `json:"summary"`
}

// Build assembles a RunReport from the recorder. Per-host result lists are
// ordered by play order then task declaration order, and hosts iterate
// deterministically via
// HostNames; the same result set always renders identically.
func Build(runID, playbook string, check bool, startedAt time.Time, rec *Recorder) *RunReport {
	report := &RunReport{
		RunID:     runID,
		Playbook:  playbook,
		CheckMode: check,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Hosts:     make(map[string][]Result),
	}

	for _, result := range rec.Snapshot() {
		report.Hosts[result.Host] = append(report.Hosts[result.Host], result)

		switch result.Status {
		case StatusSkipped, StatusSkippedFailure:
			report.Summary.Skipped++
		case StatusUnchanged:
			report.Summary.Unchanged++
		case StatusChanged:
			report.Summary.Changed++
		case StatusFailed:
			report.Summary.Failed++
		}
	}

	for host := range report.Hosts {
		results := report.Hosts[host]
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].PlayPosition != results[j].PlayPosition {
				return results[i].PlayPosition < results[j].PlayPosition
			}
			return results[i].Position < results[j].Position
		})
	}

	return report
}

// Failed reports whether any host has a failed result.
func (r *RunReport) Failed() bool {
	return r.Summary.Failed > 0
}

// HostNames returns the report's host names sorted lexically.
func (r *RunReport) HostNames() []string {
	names := make([]string, 0, len(r.Hosts))
	for name := range r.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HostFailed reports whether the named host has a failed result.
func (r *RunReport) HostFailed(host string) bool {
	for _, result := range r.Hosts[host] {
		if result.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Render writes the human-readable report.
func (r *RunReport) Render() string {
	var b strings.Builder

	for _, host := range r.HostNames() {
		fmt.Fprintf(&b, "%s:\n", host)
		for _, result := range r.Hosts[host] {
			status := string(result.Status)
			if result.CheckMode && result.Status == StatusChanged {
				status = "changed (check)"
			}
			fmt.Fprintf(&b, "  [%-22s] %s", status, result.Task)
			if result.Message != "" {
				fmt.Fprintf(&b, ": %s", result.Message)
			}
			b.WriteByte('\n')
		}
	}

	status := "success"
	if r.Failed() {
		status = "failed"
	}
	fmt.Fprintf(&b, "\n%s: changed=%d unchanged=%d skipped=%d failed=%d\n",
		status, r.Summary.Changed, r.Summary.Unchanged, r.Summary.Skipped, r.Summary.Failed)

	return b.String()
}
