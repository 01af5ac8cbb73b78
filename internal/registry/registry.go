package registry

import (
	"errors"
	"fmt"
	"sync"
)

// #region errors
var (
	// ErrDuplicateNameVersion signals a registry collision. Registrations
	// are append-only and never overwritten, so historical metric sets stay
	// reproducible against the version that produced them.
	ErrDuplicateNameVersion = errors.New("evaluator name/version already registered")
	// ErrNotFound signals an unknown evaluator reference.
	ErrNotFound = errors.New("evaluator not found")
)

// #endregion errors

// #region registry
type key struct {
	name, version string
}

// Registry holds named, versioned evaluators. Registration happens at
// process start; afterwards the registry is read-mostly and safe for
// concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]Entry
	order   []string         // distinct names in first-registration order
	latest  map[string]Entry // most recently registered version per name
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[key]Entry),
		latest:  make(map[string]Entry),
	}
}

// #endregion registry

// #region register
// Register adds an evaluator under (name, version). Fails with
// ErrDuplicateNameVersion if the pair exists; the prior registration stays
// intact. Update logic by registering a new version, never by mutating.
func (r *Registry) Register(name, version string, ev Evaluator) error {
	if name == "" || version == "" {
		return fmt.Errorf("register: empty name or version")
	}
	if ev == nil {
		return fmt.Errorf("register %s@%s: nil evaluator", name, version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{name, version}
	if _, ok := r.entries[k]; ok {
		return fmt.Errorf("register %s@%s: %w", name, version, ErrDuplicateNameVersion)
	}

	entry := Entry{Name: name, Version: version, Evaluator: ev}
	r.entries[k] = entry
	if _, seen := r.latest[name]; !seen {
		r.order = append(r.order, name)
	}
	r.latest[name] = entry
	return nil
}

// #endregion register

// #region resolve
// Resolve returns the most recently registered version of name.
func (r *Registry) Resolve(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.latest[name]
	if !ok {
		return Entry{}, fmt.Errorf("resolve %s: %w", name, ErrNotFound)
	}
	return entry, nil
}

// Get returns a specific pinned (name, version) registration, for
// reproducing a past report exactly.
func (r *Registry) Get(name, version string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[key{name, version}]
	if !ok {
		return Entry{}, fmt.Errorf("get %s@%s: %w", name, version, ErrNotFound)
	}
	return entry, nil
}

// Names returns evaluator names in first-registration order. The runner
// uses this order for deterministic output shape.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// #endregion resolve
