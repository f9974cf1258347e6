package analysis

import "fmt"

// PassFunc constructs a pass bound to a target.
type PassFunc func(t *Target) Pass

// Registry maps pass names to constructors. It is built explicitly at startup
// and passed by reference, so independent runs never share mutable state.
type Registry struct {
	order []string
	ctors map[string]PassFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]PassFunc)}
}

// Register binds a pass name to its constructor. Registering the same name
// twice is a programming error and is rejected.
func (r *Registry) Register(name string, ctor PassFunc) error {
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("pass %q is already registered", name)
	}
	r.order = append(r.order, name)
	r.ctors[name] = ctor
	return nil
}

// Lookup returns the constructor for name.
func (r *Registry) Lookup(name string) (PassFunc, bool) {
	ctor, ok := r.ctors[name]
	return ctor, ok
}

// Names lists registered passes in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// DefaultRegistry returns a registry with the built-in passes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CmdInjectionPassName, func(t *Target) Pass { return NewCmdInjectionPass(t) })
	return r
}
