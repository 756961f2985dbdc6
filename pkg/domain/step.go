package domain

import "fmt"

// BusinessContext identifies the simulated business a journey belongs to.
// Company participates in the owner key; Domain and Industry only influence
// whether a running worker can be reused for a request.
type BusinessContext struct {
	Company  string `json:"company" yaml:"company" mapstructure:"company"`
	Domain   string `json:"domain,omitempty" yaml:"domain,omitempty" mapstructure:"domain"`
	Industry string `json:"industry,omitempty" yaml:"industry,omitempty" mapstructure:"industry"`
}

// Matches reports whether a worker started with ctx can serve a request
// carrying other. Company is excluded: it is already part of the owner key,
// so two contexts compared here always share it.
func (c BusinessContext) Matches(other BusinessContext) bool {
	return c.Domain == other.Domain && c.Industry == other.Industry
}

// Substep is a fabricated sub-activity inside a journey step. Duration is
// expressed in seconds in journey definitions and scaled down by workers.
type Substep struct {
	Name     string `json:"substepName" yaml:"name" mapstructure:"name"`
	Duration int    `json:"duration" yaml:"duration" mapstructure:"duration"`
}

// StepDescriptor is the boundary type handed to the orchestration core by
// journey collaborators. It is immutable per call.
type StepDescriptor struct {
	StepName string `json:"stepName" yaml:"stepName"`

	// ServiceName is the canonical worker identity. When empty, the
	// orchestrator derives it from StepName.
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`

	Context BusinessContext `json:"businessContext" yaml:"businessContext"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`

	Substeps []Substep `json:"substeps,omitempty" yaml:"substeps,omitempty"`

	// Essential marks the resulting worker to survive stop-non-essential
	// sweeps. Journeys set it through step metadata.
	Essential bool `json:"essential,omitempty" yaml:"essential,omitempty"`

	// Metadata allows for extensible key-value pairs (decoded by the
	// journey package into typed settings).
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CanonicalName resolves the worker identity for this step: the explicit
// service name when supplied, otherwise derived from the step name.
func (s StepDescriptor) CanonicalName() string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	return CanonicalServiceName(s.StepName)
}

// OwnerKeyFor computes the owner key scoping this step's worker state.
func (s StepDescriptor) OwnerKeyFor() OwnerKey {
	return NewOwnerKey(s.CanonicalName(), s.Context.Company)
}

// OwnerKey is the composite identity (canonical service name + company)
// that scopes port, worker and breaker state.
type OwnerKey string

// ExternalOwner marks a port reservation held by something outside this
// process, discovered through a failed bind test.
const ExternalOwner OwnerKey = "external"

// NewOwnerKey builds the owner key for a service/company pair.
func NewOwnerKey(serviceName, company string) OwnerKey {
	return OwnerKey(fmt.Sprintf("%s:%s", serviceName, company))
}
