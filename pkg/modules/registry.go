package modules

import "fmt"

// Registry is the closed set of module kinds, dispatched by tag. There is no
// open-ended dynamic lookup: every kind is compiled in.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates a registry with all built-in module kinds.
func NewRegistry() *Registry {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range []Module{
		&Ping{},
		&Package{},
		&Apt{},
		&Service{},
		&Copy{},
		&Command{},
	} {
		r.modules[m.Name()] = m
	}
	return r
}

// Get returns the module for the given tag.
func (r *Registry) Get(name string) (Module, error) {
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("unknown module %q", name)
	}
	return m, nil
}

// Names returns the set of known module tags.
func (r *Registry) Names() map[string]bool {
	names := make(map[string]bool, len(r.modules))
	for name := range r.modules {
		names[name] = true
	}
	return names
}
