// Package health aggregates readiness probes for the external services genflow depends on.
package health

import (
	"context"
	"strings"
	"sync"

	"genflow/internal/agent"
)

// Status is the readiness of one component.
type Status string

const (
	StatusReady    Status = "ready"
	StatusNotReady Status = "not_ready"
	StatusDisabled Status = "disabled"
)

// ComponentHealth is the result of one probe.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Probe checks a single component.
type Probe interface {
	Check(ctx context.Context) ComponentHealth
}

// Checker aggregates health probes for all components.
type Checker struct {
	probes []Probe
	mu     sync.RWMutex
}

// NewChecker creates a checker with the given probes registered.
func NewChecker(probes ...Probe) *Checker {
	c := &Checker{}
	for _, p := range probes {
		c.RegisterProbe(p)
	}
	return c
}

// RegisterProbe adds a health probe.
func (c *Checker) RegisterProbe(probe Probe) {
	if probe == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe)
}

// CheckAll returns health status for all components in registration order.
func (c *Checker) CheckAll(ctx context.Context) []ComponentHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(c.probes))
	for _, probe := range c.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// Healthy reports whether no component is not_ready. Disabled components
// do not count against health.
func Healthy(results []ComponentHealth) bool {
	for _, r := range results {
		if r.Status == StatusNotReady {
			return false
		}
	}
	return true
}

// Pinger is anything with a health endpoint.
type Pinger interface {
	Health(ctx context.Context) error
}

// KnowledgeProbe pings the knowledge service.
type KnowledgeProbe struct {
	pinger  Pinger
	baseURL string
	enabled bool
}

// NewKnowledgeProbe creates a probe for the knowledge service at baseURL.
// An empty baseURL reports the component as disabled.
func NewKnowledgeProbe(pinger Pinger, baseURL string) *KnowledgeProbe {
	return &KnowledgeProbe{
		pinger:  pinger,
		baseURL: baseURL,
		enabled: pinger != nil && strings.TrimSpace(baseURL) != "",
	}
}

// Check returns the health status of the knowledge service.
func (p *KnowledgeProbe) Check(ctx context.Context) ComponentHealth {
	if !p.enabled {
		return ComponentHealth{
			Name:    "knowledge",
			Status:  StatusDisabled,
			Message: "knowledge service not configured",
		}
	}
	if err := p.pinger.Health(ctx); err != nil {
		return ComponentHealth{
			Name:    "knowledge",
			Status:  StatusNotReady,
			Message: err.Error(),
			Details: map[string]any{"base_url": p.baseURL},
		}
	}
	return ComponentHealth{
		Name:    "knowledge",
		Status:  StatusReady,
		Message: "knowledge service reachable",
		Details: map[string]any{"base_url": p.baseURL},
	}
}

// AgentProbe reports whether the codegen agent is configured. The agent API
// has no health endpoint, so this never makes a request.
type AgentProbe struct {
	svc agent.Service
}

// NewAgentProbe creates a probe for svc.
func NewAgentProbe(svc agent.Service) *AgentProbe {
	return &AgentProbe{svc: svc}
}

// Check returns the configuration state of the agent client.
func (p *AgentProbe) Check(context.Context) ComponentHealth {
	if !agent.IsAvailable(p.svc) {
		return ComponentHealth{
			Name:    "agent",
			Status:  StatusNotReady,
			Message: agent.UnavailableReason(p.svc),
		}
	}
	return ComponentHealth{
		Name:    "agent",
		Status:  StatusReady,
		Message: "codegen agent configured",
	}
}
