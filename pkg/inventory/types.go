// Package inventory parses static host inventories and resolves them into a
// flat, deduplicated host set with group ancestry.
package inventory

import (
	"fmt"
	"sort"
)

// Host represents one machine in the resolved inventory.
// A Host is immutable once resolved for a run.
type Host struct {
	// Name is the unique host identifier within the inventory.
	Name string `json:"name"`

	// Address is the network address used to reach the host.
	Address string `json:"address"`

	// Port is the SSH port (default: 22).
	Port int `json:"port"`

	// User is the remote username.
	User string `json:"user"`

	// KeyPath is the path to the private key used for authentication.
	KeyPath string `json:"key_path,omitempty"`

	// Password is an optional password credential.
	Password string `json:"password,omitempty"`

	// Groups is the resolved group ancestry, sorted by name.
	Groups []string `json:"groups"`

	// Vars are arbitrary per-host variables, merged from group vars
	// (outermost group first) and host vars (highest precedence).
	Vars map[string]string `json:"vars,omitempty"`
}

// InGroup reports whether the host belongs to the named group.
func (h *Host) InGroup(name string) bool {
	for _, g := range h.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// Inventory is the resolved host set.
type Inventory struct {
	hosts  map[string]*Host
	groups map[string][]string // group name -> sorted host names
}

// Hosts returns all hosts sorted by name.
func (inv *Inventory) Hosts() []*Host {
	names := make([]string, 0, len(inv.hosts))
	for name := range inv.hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	hosts := make([]*Host, 0, len(names))
	for _, name := range names {
		hosts = append(hosts, inv.hosts[name])
	}
	return hosts
}

// Host returns the host with the given name, or nil if unknown.
func (inv *Inventory) Host(name string) *Host {
	return inv.hosts[name]
}

// Group returns the hosts belonging to the named group, sorted by name.
// The pseudo-group "all" selects every host.
func (inv *Inventory) Group(name string) []*Host {
	if name == "all" {
		return inv.Hosts()
	}

	names := inv.groups[name]
	hosts := make([]*Host, 0, len(names))
	for _, n := range names {
		hosts = append(hosts, inv.hosts[n])
	}
	return hosts
}

// HasGroup reports whether the named group exists.
func (inv *Inventory) HasGroup(name string) bool {
	if name == "all" {
		return true
	}
	_, ok := inv.groups[name]
	return ok
}

// Len returns the number of resolved hosts.
func (inv *Inventory) Len() int {
	return len(inv.hosts)
}

// Error is a fatal inventory resolution error. It aborts a run before any
// execution takes place.
type Error struct {
	// Reason describes what is wrong with the inventory.
	Reason string

	// Host is the offending host name, if applicable.
	Host string

	// Group is the offending group name, if applicable.
	Group string
}

func (e *Error) Error() string {
	switch {
	case e.Host != "":
		return fmt.Sprintf("inventory: %s (host=%s)", e.Reason, e.Host)
	case e.Group != "":
		return fmt.Sprintf("inventory: %s (group=%s)", e.Reason, e.Group)
	default:
		return "inventory: " + e.Reason
	}
}
