package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/helios/pkg/telemetry/health"
	"mercator-hq/helios/pkg/telemetry/tracing"
)

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverPanics)
	r.Use(requestID)
	r.Use(tracing.HTTPMiddleware)
	r.Use(s.logRequests)

	checker := s.engine.Health()
	r.Get("/health", checker.LivenessHandler())
	r.Get("/ready", checker.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.version.version, s.version.commit, s.version.buildTime))
	if c := s.engine.Collector(); c != nil && s.metricsPath != "" {
		r.Handle(s.metricsPath, c.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", s.listPolicies)
			r.Post("/", s.createPolicy)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPolicy)
				r.Patch("/", s.updatePolicy)
				r.Delete("/", s.deletePolicy)
				r.Post("/transition", s.transitionPolicy)
				r.Post("/approvals", s.requestApproval)
				r.Post("/execute", s.executePolicy)
				r.Get("/executions", s.listExecutions)
			})
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", s.listApprovals)
			r.Get("/{id}", s.getApproval)
			r.Post("/{id}/decision", s.decideApproval)
		})

		r.Route("/violations", func(r chi.Router) {
			r.Get("/", s.listViolations)
			r.Get("/{id}", s.getViolation)
			r.Post("/{id}/assign", s.assignViolation)
			r.Post("/{id}/resolve", s.resolveViolation)
		})

		r.Get("/audit", s.auditTrail)
		r.Get("/audit/archive", s.auditArchive)
		r.Get("/metrics", s.metricsSnapshot)

		r.Route("/orchestration", func(r chi.Router) {
			r.Get("/", s.orchestrationStatus)
			r.Post("/start", s.startScheduler)
			r.Post("/stop", s.stopScheduler)
			r.Post("/tick", s.tick)
		})

		r.Get("/events", s.streamEvents)
	})

	return r
}
