package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health status values reported by the registry.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ProviderHealth is a point-in-time view of one provider.
type ProviderHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status maps the breaker state to healthy, degraded (half-open) or
// unhealthy (open).
func (h ProviderHealth) Status() string {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return StatusUnhealthy
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Registry tracks provider clients and their most recent outcomes.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider
	now       func() time.Time
}

type registeredProvider struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registeredProvider),
		now:       time.Now,
	}
}

// Register adds or replaces a provider client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &registeredProvider{client: client}
}

// RecordSuccess records a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	}
}

// Health returns the health of one provider, or false if unknown.
func (r *Registry) Health(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return p.health(name), true
}

// Snapshot returns the health of every provider sorted by name.
func (r *Registry) Snapshot() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(r.providers))
	for name, p := range r.providers {
		out = append(out, p.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall rolls the snapshot up: unhealthy if any provider is unhealthy,
// degraded if any is degraded, healthy otherwise.
func (r *Registry) Overall() string {
	status := StatusHealthy
	for _, h := range r.Snapshot() {
		switch h.Status() {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func (p *registeredProvider) health(name string) ProviderHealth {
	h := ProviderHealth{
		Name:          name,
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		LastError:     p.lastError,
	}
	if p.client != nil {
		h.CircuitState = p.client.CircuitBreakerState()
		h.Counts = p.client.CircuitBreakerCounts()
	}
	return h
}
