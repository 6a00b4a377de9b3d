// Package omp provides an embeddable entitlement-and-settlement engine for
// gating individually priced digital assets behind payment.
//
// The engine is a library, not a service. Import it directly into a Go
// application that serves downloadable publication files. It provides:
//
//   - A single access decision for every download request
//   - Durable payment intents with a one-way Queued lifecycle
//   - Idempotent entitlement recording safe under duplicate callbacks
//   - Pluggable settlement providers behind a small gateway interface
//   - A plugin registry for lifecycle hooks and identifier assignment
//
// # Quick Start
//
// Create a paywall with your preferred store and a settlement provider:
//
//	import (
//	    "github.com/marcbria/omp"
//	    "github.com/marcbria/omp/catalog"
//	    "github.com/marcbria/omp/gateway"
//	    "github.com/marcbria/omp/store/memory"
//	)
//
//	cat := catalog.NewMemory()
//	provider := gateway.NewHosted("manual-fee", checkoutURL, secret)
//
//	pw := omp.New(memory.New(), cat, omp.WithProvider(provider))
//	if err := pw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pw.Stop()
//
// # Core Concepts
//
// Every download request is reduced to one call:
//
//	verdict, err := pw.Decide(ctx, identityID, ref)
//
// The verdict is a grant, a request for authentication carrying the asset
// reference to continue with after login, or a request for payment carrying
// a freshly queued intent. Intents move exactly once from Queued to either
// Completed or Abandoned; the first completion records the entitlement and
// every later confirmation for the same intent is a harmless no-op.
//
// Provider callbacks arrive over HTTP and are verified before anything is
// finalized:
//
//	err := pw.HandleCallback(ctx, body, signature)
//
// Entitlement is durable. Once an identity has paid for an asset, Decide
// grants access indefinitely, across restarts, with no further provider
// interaction.
package omp
