package orchestrator

import (
	"fmt"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
)

// Validator validates job submissions before they enter the queue
type Validator struct{}

// NewValidator creates a new submission validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSubmission checks the submission fields and builds the task graph.
// Specs may reference each other in any order; dependency resolution and
// cycle detection happen inside BuildGraph.
func (v *Validator) ValidateSubmission(intent string, specs []domain.TaskSpec, maxRetries int) (*domain.TaskGraph, error) {
	if intent == "" {
		return nil, fmt.Errorf("intent is required")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("job must have at least one task")
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("max_retries must not be negative")
	}

	for _, spec := range specs {
		if err := v.validateTask(spec); err != nil {
			return nil, fmt.Errorf("invalid task %s: %w", spec.ID, err)
		}
	}

	graph, err := domain.BuildGraph(specs)
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// validateTask validates a single task spec
func (v *Validator) validateTask(spec domain.TaskSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if spec.Action == "" {
		return fmt.Errorf("task action is required")
	}
	if spec.Timeout < 0 {
		return fmt.Errorf("task timeout must not be negative")
	}
	for _, dep := range spec.DependsOn {
		if dep == spec.ID {
			return fmt.Errorf("task cannot depend on itself")
		}
	}
	return nil
}
