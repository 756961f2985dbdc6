/*
Package journey defines customer-journey simulations and the
orchestrator-driven runner that executes them step by step.

A journey is an ordered list of steps for one business context. The runner
drives the chain from the caller side: it resolves a worker for each step,
issues the chained call, records the outcome and moves on. Workers stay
stateless single-step executors and never decide what happens next.
*/
package journey

import (
	"fmt"
	"os"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Journey is a named sequence of steps for one business context.
type Journey struct {
	Name     string `yaml:"name" json:"name"`
	Company  string `yaml:"company" json:"company"`
	Domain   string `yaml:"domain" json:"domain"`
	Industry string `yaml:"industry" json:"industry"`

	// ThinkTime is the pause between steps; zero means the runner's
	// configured default.
	ThinkTime domain.Duration `yaml:"thinkTime" json:"thinkTime"`

	ErrorSimulation bool `yaml:"errorSimulation" json:"errorSimulation"`

	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one journey step as authored in a definition file.
type Step struct {
	Name        string           `yaml:"name" json:"name"`
	Service     string           `yaml:"service" json:"service"`
	Description string           `yaml:"description" json:"description"`
	Category    string           `yaml:"category" json:"category"`
	Substeps    []domain.Substep `yaml:"substeps" json:"substeps"`

	// Metadata allows extensible key-value pairs; recognized keys are
	// decoded into Settings.
	Metadata map[string]any `yaml:"metadata" json:"metadata"`
}

// Settings are the typed step options recognized inside Step.Metadata.
type Settings struct {
	// Essential marks a worker to survive StopNonEssential.
	Essential bool `mapstructure:"essential"`

	// ErrorRate overrides the worker's failure-simulation probability.
	ErrorRate float64 `mapstructure:"error_rate"`
}

// DecodeSettings extracts typed settings from a step's metadata map.
// Unknown keys are ignored so definitions can carry vendor extensions.
func DecodeSettings(metadata map[string]any) (Settings, error) {
	var s Settings
	if len(metadata) == 0 {
		return s, nil
	}
	if err := mapstructure.Decode(metadata, &s); err != nil {
		return s, fmt.Errorf("invalid step metadata: %w", err)
	}
	return s, nil
}

// Settings returns the step's decoded metadata settings.
func (s Step) Settings() (Settings, error) {
	return DecodeSettings(s.Metadata)
}

// Context returns the journey's business context.
func (j Journey) Context() domain.BusinessContext {
	return domain.BusinessContext{
		Company:  j.Company,
		Domain:   j.Domain,
		Industry: j.Industry,
	}
}

// Descriptor converts a step into the boundary type handed to the core.
// Metadata is assumed to decode cleanly; Validate rejects journeys where it
// does not.
func (j Journey) Descriptor(s Step) domain.StepDescriptor {
	set, _ := s.Settings()
	return domain.StepDescriptor{
		StepName:    s.Name,
		ServiceName: s.Service,
		Context:     j.Context(),
		Description: s.Description,
		Category:    s.Category,
		Substeps:    s.Substeps,
		Essential:   set.Essential,
		Metadata:    s.Metadata,
	}
}

// Validate checks the minimum shape a journey needs to run.
func (j Journey) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("journey has no name")
	}
	if j.Company == "" {
		return fmt.Errorf("journey %q has no company", j.Name)
	}
	if len(j.Steps) == 0 {
		return fmt.Errorf("journey %q has no steps", j.Name)
	}
	for i, s := range j.Steps {
		if s.Name == "" {
			return fmt.Errorf("journey %q: step %d has no name", j.Name, i)
		}
		if _, err := s.Settings(); err != nil {
			return fmt.Errorf("journey %q: step %q: %w", j.Name, s.Name, err)
		}
	}
	return nil
}

// Parse decodes a YAML journey definition.
func Parse(data []byte) (Journey, error) {
	var j Journey
	if err := yaml.Unmarshal(data, &j); err != nil {
		return j, fmt.Errorf("failed to parse journey: %w", err)
	}
	if err := j.Validate(); err != nil {
		return j, err
	}
	return j, nil
}

// Load reads a journey definition from a YAML file.
func Load(path string) (Journey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Journey{}, fmt.Errorf("failed to read journey: %w", err)
	}
	return Parse(data)
}
