package health

import "context"

// Status is the aggregated health of the service.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the store works but a provider does not: queries
	// that need embeddings will fail, everything else serves.
	Degraded Status = "degraded"
	// Unhealthy indicates the listing store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult is one component's health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckSkipped indicates the component is not configured.
	CheckSkipped CheckResult = "skipped"
)

// Report aggregates component health checks.
type Report struct {
	Status  Status
	Version string
	Checks  map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store    StorePinger
	embedder EmbeddingChecker
	version  string
}

// New creates a health service. embedder can be nil when no provider is
// configured; the check is then reported as skipped, not failed.
func New(store StorePinger, embedder EmbeddingChecker, version string) *Service {
	return &Service{store: store, embedder: embedder, version: version}
}

// Check probes every component. A store failure makes the whole service
// unhealthy; an embedder failure only degrades it, since stored listings
// remain readable.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	storeOK := true
	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
		storeOK = false
	} else {
		checks["store"] = CheckOK
	}

	embedderOK := true
	if s.embedder == nil {
		checks["embedder"] = CheckSkipped
	} else if err := s.embedder.HealthCheck(ctx); err != nil {
		checks["embedder"] = CheckError
		embedderOK = false
	} else {
		checks["embedder"] = CheckOK
	}

	status := Healthy
	switch {
	case !storeOK:
		status = Unhealthy
	case !embedderOK:
		status = Degraded
	}

	return Report{Status: status, Version: s.version, Checks: checks}
}
