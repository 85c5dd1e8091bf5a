// Package api serves the engine's command and query surface over HTTP.
//
// Routes live under /api/v1 and exchange JSON. Commands identify the caller
// through the X-Actor header. Typed engine errors map to status codes:
//
//	ValidationError               400
//	NotFoundError                 404
//	InvalidStateTransitionError   409
//	DuplicateRequestError         409
//	ConcurrencyConflictError      409
//	EvaluationError               422
//	anything else                 500
//
// GET /api/v1/events upgrades to a WebSocket and streams bus events as JSON
// text frames. The optional kind query parameter (repeatable) restricts the
// stream to those event kinds.
//
// Operational endpoints sit outside the versioned prefix: /health (liveness),
// /ready (readiness), /version and, when metrics are enabled, the Prometheus
// handler at the configured metrics path.
//
// # Basic Usage
//
//	srv := api.NewServer(&cfg.API, eng, api.WithVersion(version, commit, buildTime))
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until ctx is cancelled or Shutdown is called, then drains
// in-flight requests for up to api.shutdown_timeout.
package api
