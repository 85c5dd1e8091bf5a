// Package engine wires the policy store, audit ledger, compliance monitor,
// approval workflow, rolling metrics, event bus and orchestration scheduler
// into one Engine and exposes its command and query surface.
//
// Every lifecycle command appends an audit record and publishes an event.
// Transitions are recorded as UPDATE with details "status A -> B". The REST
// API and the CLI are thin wrappers over Engine; they carry no business
// rules of their own.
//
// Lifecycle:
//
//	eng, err := engine.New(ctx, cfg)
//	if err := eng.Open(ctx); err != nil { ... } // collaborators, optional auto start
//	eng.Start()                                 // begin ticking
//	defer eng.Close(ctx)
package engine
