// Package history persists finished run reports to a local SQLite
// database for later inspection. It is an after-the-fact audit log:
// execution never reads prior state from it.
package history

import "time"

// RunRecord is one persisted run.
type RunRecord struct {
	// ID is the run identifier.
	ID string `json:"id"`

	// Playbook is the playbook source path.
	Playbook string `json:"playbook"`

	// CheckMode marks probe-only runs.
	CheckMode bool `json:"check_mode"`

	// Status is "ok" or "failed".
	Status string `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// Changed, Unchanged, Skipped and Failed are the summary counts.
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ResultRecord is one persisted task result.
type ResultRecord struct {
	// ID is the result identifier.
	ID string `json:"id"`

	// RunID links the result to its run.
	RunID string `json:"run_id"`

	// Host, Play, Task and Module identify what ran where.
	Host   string `json:"host"`
	Play   string `json:"play"`
	Task   string `json:"task"`
	Module string `json:"module"`

	// PlayPosition is the play declaration order within the playbook.
	PlayPosition int `json:"play_position"`

	// Position is the task declaration order within its play.
	Position int `json:"position"`

	// Status is the terminal classification.
	Status string `json:"status"`

	// Message carries the diff or error detail.
	Message string `json:"message,omitempty"`

	// StartedAt is when the task started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the task execution time.
	Duration time.Duration `json:"duration"`
}
