package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/payment"
)

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onAccessDecided       []OnAccessDecided
	onIntentCreated       []OnIntentCreated
	onIntentCompleted     []OnIntentCompleted
	onIntentAbandoned     []OnIntentAbandoned
	onEntitlementRecorded []OnEntitlementRecorded
	onCallbackRejected    []OnCallbackRejected
	identifierAssigners   map[string]AssignsIdentifier
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:              slog.Default(),
		identifierAssigners: make(map[string]AssignsIdentifier),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its hook interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccessDecided); ok {
		r.onAccessDecided = append(r.onAccessDecided, v)
	}
	if v, ok := p.(OnIntentCreated); ok {
		r.onIntentCreated = append(r.onIntentCreated, v)
	}
	if v, ok := p.(OnIntentCompleted); ok {
		r.onIntentCompleted = append(r.onIntentCompleted, v)
	}
	if v, ok := p.(OnIntentAbandoned); ok {
		r.onIntentAbandoned = append(r.onIntentAbandoned, v)
	}
	if v, ok := p.(OnEntitlementRecorded); ok {
		r.onEntitlementRecorded = append(r.onEntitlementRecorded, v)
	}
	if v, ok := p.(OnCallbackRejected); ok {
		r.onCallbackRejected = append(r.onCallbackRejected, v)
	}
	if v, ok := p.(AssignsIdentifier); ok {
		if _, dup := r.identifierAssigners[v.PubIDType()]; dup {
			return fmt.Errorf("plugin: duplicate identifier assigner for %q", v.PubIDType())
		}
		r.identifierAssigners[v.PubIDType()] = v
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// IdentifierAssigners returns the registered identifier assigners keyed by
// identifier type.
func (r *Registry) IdentifierAssigners() map[string]AssignsIdentifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]AssignsIdentifier, len(r.identifierAssigners))
	for k, v := range r.identifierAssigners {
		result[k] = v
	}
	return result
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitAccessDecided emits an access decision event.
func (r *Registry) EmitAccessDecided(ctx context.Context, identityID string, ref catalog.AssetRef, verdict *access.Verdict) {
	r.mu.RLock()
	plugins := r.onAccessDecided
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccessDecided(ctx, identityID, ref, verdict)
		}); err != nil {
			r.logger.Warn("plugin OnAccessDecided failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitIntentCreated emits an intent queued event.
func (r *Registry) EmitIntentCreated(ctx context.Context, intent *payment.Intent) {
	r.mu.RLock()
	plugins := r.onIntentCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnIntentCreated(ctx, intent)
		}); err != nil {
			r.logger.Warn("plugin OnIntentCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitIntentCompleted emits an intent completed event.
func (r *Registry) EmitIntentCompleted(ctx context.Context, intent *payment.Intent) {
	r.mu.RLock()
	plugins := r.onIntentCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnIntentCompleted(ctx, intent)
		}); err != nil {
			r.logger.Warn("plugin OnIntentCompleted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitIntentAbandoned emits an intent abandoned event.
func (r *Registry) EmitIntentAbandoned(ctx context.Context, intent *payment.Intent) {
	r.mu.RLock()
	plugins := r.onIntentAbandoned
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnIntentAbandoned(ctx, intent)
		}); err != nil {
			r.logger.Warn("plugin OnIntentAbandoned failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitEntitlementRecorded emits an entitlement recorded event.
func (r *Registry) EmitEntitlementRecorded(ctx context.Context, rec *entitlement.Record) {
	r.mu.RLock()
	plugins := r.onEntitlementRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntitlementRecorded(ctx, rec)
		}); err != nil {
			r.logger.Warn("plugin OnEntitlementRecorded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCallbackRejected emits a rejected provider callback event.
func (r *Registry) EmitCallbackRejected(ctx context.Context, provider string, cause error) {
	r.mu.RLock()
	plugins := r.onCallbackRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCallbackRejected(ctx, provider, cause)
		}); err != nil {
			r.logger.Warn("plugin OnCallbackRejected failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the payment pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
