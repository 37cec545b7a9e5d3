// Package play loads declarative playbooks: ordered plays of tasks with
// optional guard conditions, targeted at inventory groups.
package play

import "fmt"

// Task is one declarative unit of desired state.
type Task struct {
	// Name is the human-readable task name.
	Name string `yaml:"name" validate:"required"`

	// Module is the module kind tag (e.g. "package", "service").
	Module string `yaml:"module" validate:"required"`

	// Params is the module parameter mapping.
	Params map[string]any `yaml:"params"`

	// When is an optional guard evaluated against host facts. A task whose
	// guard is unsatisfied is skipped without executing the module.
	When *Guard `yaml:"when"`

	// Become requests privilege escalation for this task.
	Become bool `yaml:"become"`

	// Position is the zero-based declaration order within the play.
	Position int `yaml:"-"`
}

// Play is a named, ordered sequence of tasks targeted at a group of hosts.
type Play struct {
	// Name is the play name.
	Name string `yaml:"name" validate:"required"`

	// Hosts is the target group reference ("all" for every host).
	Hosts string `yaml:"hosts" validate:"required"`

	// Become requests privilege escalation for every task in the play.
	Become bool `yaml:"become"`

	// Tasks is the ordered task sequence. Task order is preserved across
	// all hosts.
	Tasks []Task `yaml:"tasks" validate:"required,min=1,dive"`

	// Position is the zero-based declaration order within the playbook.
	Position int `yaml:"-"`
}

// Playbook is an ordered list of plays.
type Playbook struct {
	// Source is the file the playbook was loaded from, if any.
	Source string

	// Plays are executed in declaration order.
	Plays []Play
}

// PlanError is a fatal planning error for a play: a malformed task or a guard
// referencing an undefined fact key.
type PlanError struct {
	// Play is the offending play name.
	Play string

	// Task is the offending task name, if applicable.
	Task string

	// Reason describes the defect.
	Reason string
}

func (e *PlanError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("plan: %s (play=%s, task=%s)", e.Reason, e.Play, e.Task)
	}
	if e.Play != "" {
		return fmt.Sprintf("plan: %s (play=%s)", e.Reason, e.Play)
	}
	return "plan: " + e.Reason
}
