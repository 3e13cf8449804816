package carrier

import (
	"fmt"
	"strings"
	"sync"
)

// Settings holds the per-installation configuration of one carrier.
type Settings struct {
	Enabled  bool
	APIKey   string
	BaseURL  string
	PageSize int
	UseMock  bool // When true, the carrier talks to its in-process mock API
}

// Constructor builds a provider from installation settings.
// It must not fail because credentials are missing.
type Constructor func(s Settings) Provider

// Definition is the static description of a carrier variant.
type Definition struct {
	ID                  string
	Label               string
	SupportsDirectories bool
	New                 Constructor
}

// Info is the listing form of a registered carrier.
type Info struct {
	ID                  string
	Label               string
	SupportsDirectories bool
}

// Registry maps carrier identifiers to their definitions.
type Registry struct {
	defs  []Definition
	index map[string]int
	mu    sync.RWMutex
}

// NewRegistry creates a new carrier registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register adds a carrier definition. Registration order is the listing order.
func (r *Registry) Register(def Definition) error {
	id := NormalizeID(def.ID)
	if id == "" {
		return fmt.Errorf("carrier id must not be empty")
	}
	if def.New == nil {
		return fmt.Errorf("carrier %q has no constructor", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; ok {
		return fmt.Errorf("duplicate carrier %q", id)
	}
	def.ID = id
	r.index[id] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

// MustRegister is Register that panics on error, for static catalogs.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[NormalizeID(id)]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Carriers returns all registered carriers in registration order.
func (r *Registry) Carriers() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Info, 0, len(r.defs))
	for _, d := range r.defs {
		result = append(result, Info{ID: d.ID, Label: d.Label, SupportsDirectories: d.SupportsDirectories})
	}
	return result
}

// Names returns the identifiers of all registered carriers in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.ID)
	}
	return names
}

// Count returns the number of registered carriers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Known reports whether the identifier is registered.
func (r *Registry) Known(id string) bool {
	_, ok := r.lookup(id)
	return ok
}

// Label returns the display name of a carrier, or the identifier itself when unknown.
func (r *Registry) Label(id string) string {
	if d, ok := r.lookup(id); ok {
		return d.Label
	}
	return id
}

// SupportsDirectories is a static capability lookup; it does not depend on configuration.
func (r *Registry) SupportsDirectories(id string) bool {
	d, ok := r.lookup(id)
	return ok && d.SupportsDirectories
}

// Create builds a provider for the identifier. Only an unknown identifier fails.
func (r *Registry) Create(id string, s Settings) (Provider, error) {
	d, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCarrier, id)
	}
	return d.New(s), nil
}

// NormalizeID lower-cases and trims a carrier identifier.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
