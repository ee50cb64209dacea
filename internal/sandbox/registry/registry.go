package registry

import (
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
)

// Registry is the in-memory catalog of flavors, tiers and addons, loaded
// once at startup from LoadDefaults (§4.6). It is read-heavy and never
// mutated after startup in the current deployment model, but is guarded by
// a mutex anyway since the lifecycle it's adapted from always does.
type Registry struct {
	logger *logger.Logger

	mu      sync.RWMutex
	flavors map[string]*Flavor
	tiers   map[string]*Tier
	addons  map[string]*Addon
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		logger:  log.WithFields(zap.String("component", "sandbox.registry")),
		flavors: make(map[string]*Flavor),
		tiers:   make(map[string]*Tier),
		addons:  make(map[string]*Addon),
	}
}

// LoadDefaults populates the registry with the built-in catalog (§4.6,
// §9). Safe to call once at startup.
func (r *Registry) LoadDefaults() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range DefaultFlavors() {
		r.flavors[f.ID] = f
	}
	for _, t := range DefaultTiers() {
		r.tiers[t.ID] = t
	}
	for _, a := range DefaultAddons() {
		r.addons[a.ID] = a
	}

	r.logger.Info("registry loaded",
		zap.Int("flavors", len(r.flavors)),
		zap.Int("tiers", len(r.tiers)),
		zap.Int("addons", len(r.addons)),
	)
}

// Flavor looks up a flavor by id.
func (r *Registry) Flavor(id string) (*Flavor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flavors[id]
	if !ok {
		return nil, apperrors.NotFound("flavor", id)
	}
	return f, nil
}

// Tier looks up a tier by id.
func (r *Registry) Tier(id string) (*Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tiers[id]
	if !ok {
		return nil, apperrors.NotFound("tier", id)
	}
	return t, nil
}

// Addon looks up an addon by id.
func (r *Registry) Addon(id string) (*Addon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addons[id]
	if !ok {
		return nil, apperrors.NotFound("addon", id)
	}
	return a, nil
}

// ListFlavors returns all registered flavors.
func (r *Registry) ListFlavors() []*Flavor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Flavor, 0, len(r.flavors))
	for _, f := range r.flavors {
		out = append(out, f)
	}
	return out
}

// ListTiers returns all registered tiers.
func (r *Registry) ListTiers() []*Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tier, 0, len(r.tiers))
	for _, t := range r.tiers {
		out = append(out, t)
	}
	return out
}

// ListAddons returns all registered addons.
func (r *Registry) ListAddons() []*Addon {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Addon, 0, len(r.addons))
	for _, a := range r.addons {
		out = append(out, a)
	}
	return out
}
