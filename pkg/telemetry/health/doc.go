// Package health reports whether the Helios process and its collaborators
// are usable.
//
// Liveness only says the process is up. Readiness runs every registered
// check concurrently with a per-check timeout. A failing critical check
// (persistence) makes the service "unavailable"; a failing optional check
// (transport sink, audit archive) only makes it "degraded", which still
// answers 200 because the engine keeps working without them.
//
//	checker := health.New(2 * time.Second)
//	checker.Register("persistence", health.Critical, store.Ping)
//	checker.Register("transport", health.Optional, forwarder.Healthy)
//	router.Get("/health", checker.LivenessHandler())
//	router.Get("/health/ready", checker.ReadinessHandler())
package health
