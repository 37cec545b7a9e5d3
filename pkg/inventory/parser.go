package inventory

import (
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// hostEntry is the YAML shape of a host declaration.
type hostEntry struct {
	Address  string            `yaml:"address" validate:"required"`
	Port     int               `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User     string            `yaml:"user" validate:"required"`
	KeyPath  string            `yaml:"key_path"`
	Password string            `yaml:"password"`
	Vars     map[string]string `yaml:"vars"`
}

// groupEntry is the YAML shape of a group declaration.
type groupEntry struct {
	Hosts    map[string]hostEntry `yaml:"hosts"`
	Children []string             `yaml:"children"`
	Vars     map[string]string    `yaml:"vars"`
}

// inventoryFile is the top-level YAML document.
type inventoryFile struct {
	Hosts  map[string]hostEntry  `yaml:"hosts"`
	Groups map[string]groupEntry `yaml:"groups"`
}

// Parser resolves inventory files.
type Parser struct {
	validator *validator.Validate
}

// NewParser creates a new inventory parser.
func NewParser() *Parser {
	return &Parser{
		validator: validator.New(),
	}
}

// ParseFile loads and resolves the inventory at the given path.
func (p *Parser) ParseFile(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return p.Parse(data)
}

// Parse resolves an inventory document. The resolution is a pure function of
// its input: it performs no network or host access.
func (p *Parser) Parse(data []byte) (*Inventory, error) {
	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("malformed YAML: %v", err)}
	}

	if err := p.checkCycles(file.Groups); err != nil {
		return nil, err
	}

	inv := &Inventory{
		hosts:  make(map[string]*Host),
		groups: make(map[string][]string),
	}

	// Ungrouped top-level hosts.
	for name, entry := range file.Hosts {
		if err := p.addHost(inv, name, entry, nil, nil); err != nil {
			return nil, err
		}
	}

	// Grouped hosts, annotated with their full group ancestry.
	for groupName := range file.Groups {
		ancestry := p.resolveAncestry(groupName, file.Groups)
		group := file.Groups[groupName]
		for hostName, entry := range group.Hosts {
			if err := p.addHost(inv, hostName, entry, ancestry, group.Vars); err != nil {
				return nil, err
			}
		}
	}

	// Membership of child groups propagates to parents.
	for groupName, group := range file.Groups {
		members := p.collectMembers(groupName, group, file.Groups, map[string]bool{})
		sort.Strings(members)
		inv.groups[groupName] = members
	}

	if inv.Len() == 0 {
		return nil, &Error{Reason: "inventory declares no hosts"}
	}

	log.Debug().Int("hosts", inv.Len()).Int("groups", len(inv.groups)).
		Msg("inventory resolved")

	return inv, nil
}

// addHost validates and inserts a host, deduplicating by identifier.
func (p *Parser) addHost(inv *Inventory, name string, entry hostEntry, ancestry []string, groupVars map[string]string) error {
	if err := p.validator.Struct(entry); err != nil {
		return &Error{
			Reason: fmt.Sprintf("missing required connection fields: %v", err),
			Host:   name,
		}
	}

	if existing, ok := inv.hosts[name]; ok {
		if existing.Address != entry.Address {
			return &Error{
				Reason: fmt.Sprintf("duplicate host with conflicting addresses %q and %q",
					existing.Address, entry.Address),
				Host: name,
			}
		}
		// Same host declared in another group: merge ancestry.
		existing.Groups = mergeSorted(existing.Groups, ancestry)
		for k, v := range groupVars {
			if _, set := existing.Vars[k]; !set {
				existing.Vars[k] = v
			}
		}
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = 22
	}

	vars := make(map[string]string, len(groupVars)+len(entry.Vars))
	for k, v := range groupVars {
		vars[k] = v
	}
	for k, v := range entry.Vars {
		vars[k] = v // host vars win over group vars
	}

	groups := make([]string, len(ancestry))
	copy(groups, ancestry)
	sort.Strings(groups)

	inv.hosts[name] = &Host{
		Name:     name,
		Address:  entry.Address,
		Port:     port,
		User:     entry.User,
		KeyPath:  entry.KeyPath,
		Password: entry.Password,
		Groups:   groups,
		Vars:     vars,
	}
	return nil
}

// checkCycles rejects cyclic group nesting via DFS with a recursion stack.
func (p *Parser) checkCycles(groups map[string]groupEntry) error {
	visited := map[string]bool{}
	stack := map[string]bool{}

	var visit func(name string) error
	visit = func(name string) error {
		if stack[name] {
			return &Error{Reason: "cyclic group nesting", Group: name}
		}
		if visited[name] {
			return nil
		}
		visited[name] = true
		stack[name] = true
		defer func() { stack[name] = false }()

		group, ok := groups[name]
		if !ok {
			return &Error{Reason: "child group is not declared", Group: name}
		}
		for _, child := range group.Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// resolveAncestry returns the group itself plus every ancestor group that
// (transitively) lists it as a child.
func (p *Parser) resolveAncestry(name string, groups map[string]groupEntry) []string {
	ancestry := []string{name}
	for parent, group := range groups {
		for _, child := range group.Children {
			if child == name {
				ancestry = append(ancestry, p.resolveAncestry(parent, groups)...)
			}
		}
	}
	return dedupe(ancestry)
}

// collectMembers gathers the host names of a group and all its children.
func (p *Parser) collectMembers(name string, group groupEntry, groups map[string]groupEntry, seen map[string]bool) []string {
	if seen[name] {
		return nil
	}
	seen[name] = true

	members := make([]string, 0, len(group.Hosts))
	for hostName := range group.Hosts {
		members = append(members, hostName)
	}
	for _, child := range group.Children {
		if childGroup, ok := groups[child]; ok {
			members = append(members, p.collectMembers(child, childGroup, groups, seen)...)
		}
	}
	return dedupe(members)
}

// Limit returns the subset of hosts matching the glob pattern. The pattern is
// matched against host names and group names.
func Limit(hosts []*Host, pattern string) ([]*Host, error) {
	if pattern == "" || pattern == "all" {
		return hosts, nil
	}

	if _, err := path.Match(pattern, ""); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("invalid limit pattern %q", pattern)}
	}

	selected := make([]*Host, 0, len(hosts))
	for _, h := range hosts {
		if ok, _ := path.Match(pattern, h.Name); ok {
			selected = append(selected, h)
			continue
		}
		for _, g := range h.Groups {
			if ok, _ := path.Match(pattern, g); ok {
				selected = append(selected, h)
				break
			}
		}
	}
	return selected, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeSorted(a, b []string) []string {
	merged := dedupe(append(append([]string{}, a...), b...))
	sort.Strings(merged)
	return merged
}
