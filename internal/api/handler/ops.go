// Package handler provides HTTP handlers for the CongestionAI API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/congestionai/congestionai/internal/api/models"
	"github.com/congestionai/congestionai/internal/api/response"
	"github.com/congestionai/congestionai/internal/provider/resilience"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck probes one dependency, such as the history store or the
// route cache.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	checks    []ReadinessCheck
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, checks []ReadinessCheck) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		checks:    checks,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - 503 until every dependency answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	status := http.StatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			if health.Details == nil {
				health.Details = make(map[string]interface{})
			}
			health.Details[s.Name] = *s.Detail
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.runChecks(r.Context()),
		Providers:  []models.ProviderStatus{},
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}

	if h.registry != nil {
		for _, p := range h.registry.Snapshot() {
			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        providerStatus(p.Status()),
				CircuitState:  p.CircuitState.String(),
				Requests:      p.Counts.Requests,
				Failures:      p.Counts.ConsecutiveFailures,
				LastSuccessAt: timestampPtr(p.LastSuccessAt),
				LastFailureAt: timestampPtr(p.LastFailureAt),
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			status.Providers = append(status.Providers, ps)
			status.Status = worse(status.Status, ps.Status)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func providerStatus(s string) models.HealthStatus {
	switch s {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// worse returns the more severe of two statuses.
func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
