package swarm

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineStep describes one task template in a pipeline. The artifact of
// each completed step is appended to the next step's prompt.
type PipelineStep struct {
	Name        string   `yaml:"name" json:"name"`
	Kind        TaskKind `yaml:"kind,omitempty" json:"kind,omitempty"`
	Description string   `yaml:"description" json:"description"`

	// Backend optionally pins the step to one backend identifier
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	// QualityThreshold overrides the acceptance bar for this step when > 0
	QualityThreshold float64 `yaml:"quality_threshold,omitempty" json:"quality_threshold,omitempty"`
	// MaxTokens caps the artifact size for this step when > 0
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// Pipeline is an ordered sequence of dependent generation steps.
type Pipeline struct {
	Name  string         `yaml:"name" json:"name"`
	Steps []PipelineStep `yaml:"steps" json:"steps"`
}

// PipelineStepResult pairs a step name with its task outcome.
type PipelineStepResult struct {
	StepName string      `json:"step_name"`
	Result   *TaskResult `json:"result"`
}

// PipelineResult collects the step outcomes of one pipeline run.
type PipelineResult struct {
	Name    string               `json:"name"`
	Results []PipelineStepResult `json:"results"`
}

// LoadPipeline loads a pipeline from a YAML file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	var pipeline Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline: %w", err)
	}

	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// Save writes the pipeline to a YAML file.
func (p *Pipeline) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pipeline file: %w", err)
	}

	return nil
}

// Validate checks that every step is runnable.
func (p *Pipeline) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("pipeline has no steps")
	}
	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("pipeline step %d: name is required", i)
		}
		if step.Description == "" {
			return fmt.Errorf("pipeline step %s: description is required", step.Name)
		}
	}
	return nil
}

// Run executes the pipeline steps sequentially on the orchestrator, feeding
// each accepted artifact into the next step's prompt. Execution stops at the
// first step that does not succeed; the partial results are returned
// alongside the error.
func (p *Pipeline) Run(ctx context.Context, orchestrator *Orchestrator) (*PipelineResult, error) {
	result := &PipelineResult{
		Name:    p.Name,
		Results: make([]PipelineStepResult, 0, len(p.Steps)),
	}

	var previous string
	for _, step := range p.Steps {
		kind := step.Kind
		if kind == "" {
			kind = KindGeneral
		}
		prompt := step.Description
		if previous != "" {
			prompt = fmt.Sprintf("%s\n\nOutput of the previous step:\n%s", step.Description, previous)
		}

		task := NewTask(kind, prompt)
		if step.Backend != "" {
			task.WithBackend(step.Backend)
		}
		if step.QualityThreshold > 0 {
			task.WithQualityThreshold(step.QualityThreshold)
		}
		if step.MaxTokens > 0 {
			task.WithMaxTokens(step.MaxTokens)
		}

		taskResult, err := orchestrator.ExecuteTask(ctx, task)
		if err != nil {
			return result, fmt.Errorf("failed to execute step %s: %w", step.Name, err)
		}
		result.Results = append(result.Results, PipelineStepResult{StepName: step.Name, Result: taskResult})

		if !taskResult.Success {
			return result, fmt.Errorf("step %s ended %s: %s", step.Name, taskResult.Status, taskResult.Error)
		}
		previous = taskResult.Artifact
	}

	return result, nil
}
