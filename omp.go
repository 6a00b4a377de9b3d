package omp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/gateway"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/plugin"
	"github.com/marcbria/omp/store"
	"github.com/marcbria/omp/types"
)

// Paywall is the entitlement-and-settlement engine. It decides whether a
// requesting identity may receive an asset now, and if not, drives the
// request through payment queuing and confirmation until durable
// entitlement state exists.
type Paywall struct {
	store    store.Store
	catalog  catalog.Catalog
	provider gateway.Provider
	plugins  *plugin.Registry
	logger   *slog.Logger

	// Background sweep
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	abandonAfter  time.Duration
	sweepInterval time.Duration
}

// New creates a new Paywall instance. A nil provider is allowed and yields
// an engine that serves free assets only; whether payments are configured
// is resolved here, at construction, not per request.
func New(s store.Store, cat catalog.Catalog, opts ...Option) *Paywall {
	p := &Paywall{
		store:         s,
		catalog:       cat,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		stopChan:      make(chan struct{}),
		abandonAfter:  24 * time.Hour,
		sweepInterval: time.Hour,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Option configures a Paywall instance.
type Option func(*Paywall)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Paywall) {
		p.logger = logger
		p.plugins.WithLogger(logger)
	}
}

// WithProvider sets the settlement provider, enabling paid downloads.
func WithProvider(prov gateway.Provider) Option {
	return func(p *Paywall) {
		p.provider = prov
	}
}

// WithPlugin registers a plugin.
func WithPlugin(pl plugin.Plugin) Option {
	return func(p *Paywall) {
		_ = p.plugins.Register(pl) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSweepConfig configures the stale-intent sweep: queued intents older
// than abandonAfter are abandoned every sweepInterval.
func WithSweepConfig(abandonAfter, sweepInterval time.Duration) Option {
	return func(p *Paywall) {
		p.abandonAfter = abandonAfter
		p.sweepInterval = sweepInterval
	}
}

// Configured reports whether a settlement provider is wired in. When false,
// priced assets cannot be sold and Decide fails with
// ErrPaymentsNotConfigured.
func (p *Paywall) Configured() bool { return p.provider != nil }

// Start migrates the store, initializes plugins and begins the stale-intent
// sweep worker.
func (p *Paywall) Start(ctx context.Context) error {
	if err := p.store.Migrate(ctx); err != nil {
		return fmt.Errorf("omp: migrate store: %w", err)
	}

	p.plugins.EmitInit(ctx, p)

	p.wg.Add(1)
	go p.sweepWorker(ctx)

	p.logger.Info("paywall started",
		"payments_configured", p.Configured(),
		"abandon_after", p.abandonAfter,
		"sweep_interval", p.sweepInterval,
	)

	return nil
}

// Stop shuts down the Paywall.
func (p *Paywall) Stop() error {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()

	ctx := context.Background()
	p.plugins.EmitShutdown(ctx)

	return p.store.Close()
}

// ──────────────────────────────────────────────────
// Access decision
// ──────────────────────────────────────────────────

// Decide determines whether identityID (empty = anonymous) may receive the
// asset now. It is safe to call repeatedly: the only side effect is the
// creation of a fresh payment intent when payment is required, and callers
// are expected to poll it after returning from a payment redirect.
//
// Store failures are never downgraded to a grant; the decision fails
// closed.
func (p *Paywall) Decide(ctx context.Context, identityID string, ref catalog.AssetRef) (*access.Verdict, error) {
	asset, err := p.catalog.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrAssetNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, ref)
		}
		return nil, fmt.Errorf("omp: resolve %s: %w", ref, err)
	}

	// Hard gate: withheld from everyone, including prior purchasers.
	if !asset.Retrievable() {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRetrievable, ref)
	}

	if asset.Free() {
		return p.decided(ctx, identityID, ref, &access.Verdict{Decision: access.Grant}), nil
	}

	assetKey := ref.Composite()

	if identityID != "" {
		paid, err := p.store.HasPaid(ctx, identityID, assetKey)
		if err != nil {
			return nil, fmt.Errorf("omp: entitlement lookup: %w", err)
		}
		if paid {
			return p.decided(ctx, identityID, ref, &access.Verdict{Decision: access.Grant}), nil
		}
	}

	if identityID == "" {
		continueRef := ref
		return p.decided(ctx, identityID, ref, &access.Verdict{
			Decision: access.RequireAuthentication,
			Continue: &continueRef,
		}), nil
	}

	if !p.Configured() {
		return nil, fmt.Errorf("%w: cannot sell %s", ErrPaymentsNotConfigured, ref)
	}

	intent, err := p.CreateIntent(ctx, identityID, assetKey, *asset.Price)
	if err != nil {
		return nil, err
	}

	return p.decided(ctx, identityID, ref, &access.Verdict{
		Decision: access.RequirePayment,
		Intent:   intent,
	}), nil
}

func (p *Paywall) decided(ctx context.Context, identityID string, ref catalog.AssetRef, v *access.Verdict) *access.Verdict {
	p.plugins.EmitAccessDecided(ctx, identityID, ref, v)
	return v
}

// ──────────────────────────────────────────────────
// Payment ledger
// ──────────────────────────────────────────────────

// CreateIntent queues a new payment intent. Every call creates a fresh
// intent; concurrent unpaid attempts by the same identity for the same
// asset may queue several, which is harmless: completion requires external
// proof of payment, and at most one intent ever entitles the identity.
func (p *Paywall) CreateIntent(ctx context.Context, identityID, assetKey string, amount types.Money) (*payment.Intent, error) {
	intent := payment.New(identityID, assetKey, amount)

	if err := p.store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("omp: queue intent: %w", err)
	}

	p.logger.Debug("intent queued",
		"intent", intent.ID,
		"identity", identityID,
		"asset", assetKey,
		"amount", amount,
	)
	p.plugins.EmitIntentCreated(ctx, intent)

	return intent, nil
}

// Intent returns a payment intent by ID.
func (p *Paywall) Intent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	intent, err := p.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("omp: get intent %s: %w", intentID, err)
	}
	return intent, nil
}

// Complete finalizes an intent from a verified provider confirmation. The
// Queued→Completed transition happens exactly once; the first success
// records the entitlement. A duplicate confirmation for an already
// completed intent is logged and treated as success, since the entitlement
// already exists. An unknown intent is an error.
func (p *Paywall) Complete(ctx context.Context, intentID id.IntentID, conf *gateway.Confirmation) error {
	now := time.Now().UTC()

	intent, err := p.store.CompleteIntent(ctx, intentID, conf.Reference, now)
	switch {
	case errors.Is(err, ErrIntentCompleted):
		// At-least-once delivery: the transition already happened, but the
		// winning call may have died before its entitlement write landed.
		// Recording is idempotent, so re-assert the record before
		// reporting success.
		completedAt := now
		if intent.CompletedAt != nil {
			completedAt = *intent.CompletedAt
		}
		rec := entitlement.NewRecord(intent.IdentityID, intent.AssetKey, completedAt)
		if err := p.store.RecordEntitlement(ctx, rec); err != nil {
			return fmt.Errorf("omp: record entitlement for intent %s: %w", intentID, err)
		}
		p.logger.Info("duplicate completion ignored", "intent", intentID)
		return nil
	case err != nil:
		return fmt.Errorf("omp: complete intent %s: %w", intentID, err)
	}

	rec := entitlement.NewRecord(intent.IdentityID, intent.AssetKey, now)
	if err := p.store.RecordEntitlement(ctx, rec); err != nil {
		// The intent is Completed but the entitlement write failed; the
		// caller retries and RecordEntitlement is idempotent.
		return fmt.Errorf("omp: record entitlement for intent %s: %w", intentID, err)
	}

	p.logger.Info("intent completed",
		"intent", intent.ID,
		"identity", intent.IdentityID,
		"asset", intent.AssetKey,
		"provider_ref", conf.Reference,
	)
	p.plugins.EmitIntentCompleted(ctx, intent)
	p.plugins.EmitEntitlementRecorded(ctx, rec)

	return nil
}

// Abandon cancels a queued intent. Abandoning a completed intent is a
// no-op so that out-of-order provider callbacks stay harmless.
func (p *Paywall) Abandon(ctx context.Context, intentID id.IntentID) error {
	intent, err := p.store.AbandonIntent(ctx, intentID, time.Now().UTC())
	switch {
	case errors.Is(err, ErrIntentCompleted):
		p.logger.Info("abandon of completed intent ignored", "intent", intentID)
		return nil
	case err != nil:
		return fmt.Errorf("omp: abandon intent %s: %w", intentID, err)
	}

	if intent.AbandonedAt != nil {
		p.plugins.EmitIntentAbandoned(ctx, intent)
	}

	return nil
}

// ──────────────────────────────────────────────────
// Gateway session
// ──────────────────────────────────────────────────

// Begin hands a queued intent off to the settlement provider and returns
// the redirect target for the buyer.
func (p *Paywall) Begin(ctx context.Context, intent *payment.Intent) (*gateway.Redirect, error) {
	if !p.Configured() {
		return nil, ErrPaymentsNotConfigured
	}

	redirect, err := p.provider.Begin(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("omp: begin checkout for intent %s: %w", intent.ID, err)
	}

	return redirect, nil
}

// HandleCallback authenticates and parses an inbound provider callback and
// completes the referenced intent. Verification failures never entitle
// anyone.
func (p *Paywall) HandleCallback(ctx context.Context, payload []byte, signature string) error {
	if !p.Configured() {
		return ErrPaymentsNotConfigured
	}

	conf, err := p.provider.ParseCallback(ctx, payload, signature)
	if err != nil {
		p.logger.Warn("provider callback rejected",
			"provider", p.provider.Name(),
			"error", err,
		)
		p.plugins.EmitCallbackRejected(ctx, p.provider.Name(), err)
		return fmt.Errorf("omp: callback from %s: %w", p.provider.Name(), err)
	}

	return p.Complete(ctx, conf.IntentID, conf)
}

// ──────────────────────────────────────────────────
// Identifier assignment
// ──────────────────────────────────────────────────

// AssignIdentifiers runs every registered identifier-assignment plugin over
// the given publication formats, filling in identifiers that are missing.
// Existing identifiers are never overwritten. It returns the identifier
// types that are enabled.
func (p *Paywall) AssignIdentifiers(ctx context.Context, formats []*catalog.Format) ([]string, error) {
	assigners := p.plugins.IdentifierAssigners()

	enabled := make([]string, 0, len(assigners))
	for idType, assigner := range assigners {
		enabled = append(enabled, idType)

		for _, f := range formats {
			if f.PubID(idType) != "" {
				continue
			}

			value, err := assigner.AssignPubID(ctx, f)
			if err != nil {
				return enabled, fmt.Errorf("omp: assign %s for format %s: %w", idType, f.ID, err)
			}
			f.SetPubID(idType, value)
		}
	}

	return enabled, nil
}

// ──────────────────────────────────────────────────
// Stale-intent sweep
// ──────────────────────────────────────────────────

// SweepStale abandons queued intents older than the configured threshold.
// It is invoked periodically by the sweep worker and may be called directly
// by operational tooling.
func (p *Paywall) SweepStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-p.abandonAfter)

	stale, err := p.store.ListStaleIntents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("omp: list stale intents: %w", err)
	}

	swept := 0
	for _, intent := range stale {
		if err := p.Abandon(ctx, intent.ID); err != nil {
			p.logger.Warn("failed to abandon stale intent", "intent", intent.ID, "error", err)
			continue
		}
		swept++
	}

	if swept > 0 {
		p.logger.Info("swept stale intents", "count", swept, "cutoff", cutoff)
	}

	return swept, nil
}

func (p *Paywall) sweepWorker(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.SweepStale(ctx); err != nil {
				p.logger.Error("stale intent sweep failed", "error", err)
			}
		}
	}
}
