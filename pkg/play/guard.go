package play

import (
	"fmt"
)

// Guard is a closed expression tree evaluated against an immutable fact
// mapping. Exactly one variant must be set per node:
//
//	when: {fact: os_family, equals: debian}
//	when: {fact: os_family, in: [debian, redhat]}
//	when: {all: [...]} / {any: [...]} / {not: {...}}
//
// Tagged variants instead of an embedded expression language keep guard
// semantics small and statically checkable.
type Guard struct {
	// Fact names the fact key for the comparison variants.
	Fact string `yaml:"fact"`

	// Equals matches when the fact value equals this string exactly.
	Equals *string `yaml:"equals"`

	// NotEquals matches when the fact value differs from this string.
	NotEquals *string `yaml:"not_equals"`

	// In matches when the fact value is a member of this set.
	In []string `yaml:"in"`

	// All matches when every child guard matches.
	All []Guard `yaml:"all"`

	// Any matches when at least one child guard matches.
	Any []Guard `yaml:"any"`

	// Not inverts its child guard.
	Not *Guard `yaml:"not"`
}

// UndefinedFactError reports a guard referencing a fact key that does not
// exist for the host being evaluated.
type UndefinedFactError struct {
	Key string
}

func (e *UndefinedFactError) Error() string {
	return fmt.Sprintf("guard references undefined fact key %q", e.Key)
}

// variantCount returns how many variants are set on this node.
func (g *Guard) variantCount() int {
	n := 0
	if g.Equals != nil {
		n++
	}
	if g.NotEquals != nil {
		n++
	}
	if len(g.In) > 0 {
		n++
	}
	if len(g.All) > 0 {
		n++
	}
	if len(g.Any) > 0 {
		n++
	}
	if g.Not != nil {
		n++
	}
	return n
}

// Validate checks the structural shape of the guard tree and that every fact
// reference names a known key. knownFacts may be nil to skip key checking.
func (g *Guard) Validate(knownFacts map[string]bool) error {
	if g.variantCount() != 1 {
		return fmt.Errorf("guard node must set exactly one of equals/not_equals/in/all/any/not")
	}

	comparison := g.Equals != nil || g.NotEquals != nil || len(g.In) > 0
	if comparison {
		if g.Fact == "" {
			return fmt.Errorf("comparison guard requires a fact key")
		}
		if knownFacts != nil && !knownFacts[g.Fact] {
			return &UndefinedFactError{Key: g.Fact}
		}
		return nil
	}
	if g.Fact != "" {
		return fmt.Errorf("combinator guard must not set a fact key")
	}

	children := g.All
	if len(g.Any) > 0 {
		children = g.Any
	}
	for i := range children {
		if err := children[i].Validate(knownFacts); err != nil {
			return err
		}
	}
	if g.Not != nil {
		return g.Not.Validate(knownFacts)
	}
	return nil
}

// Eval evaluates the guard against the host's facts. Referencing a key absent
// from the mapping is an UndefinedFactError.
func (g *Guard) Eval(facts map[string]string) (bool, error) {
	switch {
	case g.Equals != nil:
		v, err := lookup(facts, g.Fact)
		if err != nil {
			return false, err
		}
		return v == *g.Equals, nil

	case g.NotEquals != nil:
		v, err := lookup(facts, g.Fact)
		if err != nil {
			return false, err
		}
		return v != *g.NotEquals, nil

	case len(g.In) > 0:
		v, err := lookup(facts, g.Fact)
		if err != nil {
			return false, err
		}
		for _, candidate := range g.In {
			if v == candidate {
				return true, nil
			}
		}
		return false, nil

	case len(g.All) > 0:
		for i := range g.All {
			ok, err := g.All[i].Eval(facts)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case len(g.Any) > 0:
		for i := range g.Any {
			ok, err := g.Any[i].Eval(facts)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case g.Not != nil:
		ok, err := g.Not.Eval(facts)
		return !ok, err

	default:
		return false, fmt.Errorf("empty guard node")
	}
}

func lookup(facts map[string]string, key string) (string, error) {
	v, ok := facts[key]
	if !ok {
		return "", &UndefinedFactError{Key: key}
	}
	return v, nil
}
