package carrier

import (
	"fmt"
	"sync"
)

// Factory creates providers for this installation's carrier settings.
// Providers are built once per carrier and reused.
type Factory struct {
	registry *Registry
	settings map[string]Settings

	mu    sync.Mutex
	cache map[string]Provider
}

// NewFactory binds installation settings to a registry.
func NewFactory(registry *Registry, settings map[string]Settings) *Factory {
	normalized := make(map[string]Settings, len(settings))
	for id, s := range settings {
		normalized[NormalizeID(id)] = s
	}
	return &Factory{
		registry: registry,
		settings: normalized,
		cache:    make(map[string]Provider),
	}
}

// Registry returns the underlying registry.
func (f *Factory) Registry() *Registry {
	return f.registry
}

// Provider returns the configured provider for a carrier.
// It fails with ErrUnknownCarrier or ErrCarrierDisabled.
func (f *Factory) Provider(id string) (Provider, error) {
	id = NormalizeID(id)
	if !f.registry.Known(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCarrier, id)
	}
	s, ok := f.settings[id]
	if !ok || !s.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrCarrierDisabled, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[id]; ok {
		return p, nil
	}
	p, err := f.registry.Create(id, s)
	if err != nil {
		return nil, err
	}
	f.cache[id] = p
	return p, nil
}

// Enabled returns the identifiers of enabled carriers in registry order.
func (f *Factory) Enabled() []string {
	var ids []string
	for _, id := range f.registry.Names() {
		if s, ok := f.settings[id]; ok && s.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}
