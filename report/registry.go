package report

import (
	"fmt"
	"strings"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
)

// Registry selects a backend for a source.
//
// Descriptors are evaluated in registration order; the first whose Handles
// predicate accepts the source wins. A Registry is not safe for concurrent
// Register calls, but Select may be called concurrently once registration is done.
type Registry struct {
	descs []Descriptor
}

// NewRegistry creates a registry holding descs in order.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{}
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register appends d. Names must be unique and non-empty.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" || d.Handles == nil || d.New == nil {
		return fmt.Errorf("incomplete backend descriptor %q", d.Name)
	}
	if _, ok := r.Lookup(d.Name); ok {
		return fmt.Errorf("backend %q already registered", d.Name)
	}
	r.descs = append(r.descs, d)

	return nil
}

// Lookup returns the descriptor registered under name.
// Kind aliases such as "h5d" resolve to their canonical name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	if kind, err := format.ParseKind(name); err == nil {
		name = kind.String()
	}
	for _, d := range r.descs {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}

	return Descriptor{}, false
}

// Names returns the registered backend names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.descs))
	for i, d := range r.descs {
		names[i] = d.Name
	}

	return names
}

// Select returns the descriptor that serves init.
//
// An explicit init.Type bypasses the predicates.
//
// Returns:
//   - Descriptor: The selected backend
//   - error: ErrUnsupportedFormat if no backend accepts the source
func (r *Registry) Select(init InitData) (Descriptor, error) {
	if init.Type != "" {
		d, ok := r.Lookup(init.Type)
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: unknown report type %q", errs.ErrUnsupportedFormat, init.Type)
		}

		return d, nil
	}

	for _, d := range r.descs {
		if d.Handles(init) {
			return d, nil
		}
	}

	return Descriptor{}, fmt.Errorf("%w: %q (mode %s)", errs.ErrUnsupportedFormat, init.Source, init.Mode)
}
