package swarm

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind classifies the work a task asks for. The kind drives the
// structural checks applied during verification and participates in
// strategy affinity matching.
type TaskKind string

const (
	// KindCodeGeneration produces source code artifacts
	KindCodeGeneration TaskKind = "code-generation"
	// KindForecasting produces numeric projections
	KindForecasting TaskKind = "forecasting"
	// KindClassification produces labeling or categorization output
	KindClassification TaskKind = "classification"
	// KindGeneral covers free-form generation
	KindGeneral TaskKind = "general"
)

// TaskPriority orders tasks when callers batch them.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// StatusPending indicates the task has not started
	StatusPending TaskStatus = "pending"
	// StatusAnalyzing indicates strategy selection is running
	StatusAnalyzing TaskStatus = "analyzing"
	// StatusDesigning indicates the backend request is being constructed
	StatusDesigning TaskStatus = "designing"
	// StatusExecuting indicates a generate call is in flight
	StatusExecuting TaskStatus = "executing"
	// StatusVerifying indicates the artifact is being judged
	StatusVerifying TaskStatus = "verifying"
	// StatusRefining indicates a rejected attempt is being reworked
	StatusRefining TaskStatus = "refining"
	// StatusSucceeded indicates an accepted artifact; terminal
	StatusSucceeded TaskStatus = "succeeded"
	// StatusFailed indicates attempts were exhausted; terminal
	StatusFailed TaskStatus = "failed"
	// StatusCancelled indicates an external abort; terminal
	StatusCancelled TaskStatus = "cancelled"
)

// allowedTransitions is the task state machine. Absent keys are terminal.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:   {StatusAnalyzing, StatusCancelled},
	StatusAnalyzing: {StatusDesigning, StatusFailed, StatusCancelled},
	StatusDesigning: {StatusExecuting, StatusCancelled},
	StatusExecuting: {StatusVerifying, StatusRefining, StatusFailed, StatusCancelled},
	StatusVerifying: {StatusSucceeded, StatusRefining, StatusFailed, StatusCancelled},
	StatusRefining:  {StatusExecuting, StatusFailed, StatusCancelled},
}

// Terminal reports whether a status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	_, ok := allowedTransitions[s]
	return !ok
}

// FailureClass distinguishes the ways an attempt can fail.
type FailureClass string

const (
	// FailureGeneration is a backend error during Generate
	FailureGeneration FailureClass = "generation"
	// FailureTimeout is a per-call timeout expiry, kept distinct for diagnostics
	FailureTimeout FailureClass = "timeout"
	// FailureRejected is a verification rejection, expected control flow
	FailureRejected FailureClass = "rejected"
	// FailureCancelled is an external abort observed mid-attempt
	FailureCancelled FailureClass = "cancelled"
)

// FailureReason describes why an attempt did not produce an accepted artifact.
type FailureReason struct {
	Class   FailureClass `json:"class"`
	Message string       `json:"message"`
}

func (r *FailureReason) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.Class, r.Message)
}

// AttemptResult records the outcome of one generate+verify cycle.
// The ordered sequence of these on a task is its full audit trail.
type AttemptResult struct {
	Attempt   int            `json:"attempt"`
	Backend   string         `json:"backend"`
	Artifact  string         `json:"artifact,omitempty"`
	Quality   float64        `json:"quality"`
	Accepted  bool           `json:"accepted"`
	Cached    bool           `json:"cached,omitempty"`
	Failure   *FailureReason `json:"failure,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// Task is one unit of generation work. The description is immutable after
// construction; the lifecycle fields are owned exclusively by the
// orchestrator that executes the task.
type Task struct {
	// ID uniquely identifies the task
	ID string `json:"id"`
	// Kind classifies the requested work
	Kind TaskKind `json:"kind"`
	// Description is the free-text prompt seed for generation
	Description string `json:"description"`
	// Priority orders the task relative to others in a batch
	Priority TaskPriority `json:"priority"`
	// CreatedAt is the construction timestamp
	CreatedAt time.Time `json:"created_at"`

	// Backend optionally pins the task to one backend identifier
	Backend string `json:"backend,omitempty"`
	// QualityThreshold overrides the global acceptance threshold when > 0
	QualityThreshold float64 `json:"quality_threshold,omitempty"`
	// MaxTokens caps the artifact size when > 0
	MaxTokens int `json:"max_tokens,omitempty"`

	// Status is the current lifecycle state
	Status TaskStatus `json:"status"`
	// Strategy is the specialization chosen during analysis
	Strategy StrategyTag `json:"strategy,omitempty"`
	// Attempts counts completed generate+verify cycles
	Attempts int `json:"attempts"`
	// History is the ordered audit trail of every attempt
	History []AttemptResult `json:"history,omitempty"`
	// Trace records every status the task has entered, in order
	Trace []TaskStatus `json:"trace,omitempty"`
}

// NewTask creates a task with a fresh identifier and default settings.
func NewTask(kind TaskKind, description string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		Priority:    PriorityNormal,
		CreatedAt:   time.Now(),
		Status:      StatusPending,
		Trace:       []TaskStatus{StatusPending},
	}
}

// NewCodeTask creates a code-generation task with the usual acceptance bar.
func NewCodeTask(description string) *Task {
	return NewTask(KindCodeGeneration, description).WithQualityThreshold(0.8)
}

// NewForecastTask creates a forecasting task. Forecasts carry a higher
// acceptance bar and priority than general work.
func NewForecastTask(description string) *Task {
	return NewTask(KindForecasting, description).
		WithQualityThreshold(0.9).
		WithPriority(PriorityHigh)
}

// WithPriority sets the task priority and returns the task for chaining.
func (t *Task) WithPriority(priority TaskPriority) *Task {
	t.Priority = priority
	return t
}

// WithBackend pins the task to a backend identifier and returns the task for chaining.
func (t *Task) WithBackend(identifier string) *Task {
	t.Backend = identifier
	return t
}

// WithQualityThreshold overrides the acceptance threshold and returns the task for chaining.
func (t *Task) WithQualityThreshold(threshold float64) *Task {
	t.QualityThreshold = threshold
	return t
}

// WithMaxTokens caps the artifact size and returns the task for chaining.
func (t *Task) WithMaxTokens(n int) *Task {
	t.MaxTokens = n
	return t
}

// Validate checks that the task is well-formed for submission.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if t.Description == "" {
		return fmt.Errorf("task description is required")
	}
	if t.Kind == "" {
		return fmt.Errorf("task kind is required")
	}
	return nil
}

// transition moves the task to the next status, recording it in the trace.
// Transitions are validated against the state machine; terminal statuses
// reject every move.
func (t *Task) transition(to TaskStatus) error {
	for _, next := range allowedTransitions[t.Status] {
		if next == to {
			t.Status = to
			t.Trace = append(t.Trace, to)
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", t.Status, to)
}

// recordAttempt appends one attempt outcome and bumps the counter.
func (t *Task) recordAttempt(res AttemptResult) {
	t.Attempts++
	res.Attempt = t.Attempts
	t.History = append(t.History, res)
}

// TaskResult is the uniform outcome of driving a task to a terminal status.
// Exhausted attempts and cancellation are reported here, never as errors.
type TaskResult struct {
	TaskID       string          `json:"task_id"`
	Success      bool            `json:"success"`
	Status       TaskStatus      `json:"status"`
	Artifact     string          `json:"artifact,omitempty"`
	Attempts     int             `json:"attempts"`
	StrategyUsed StrategyTag     `json:"strategy_used"`
	BackendUsed  string          `json:"backend_used,omitempty"`
	Quality      float64         `json:"quality"`
	Duration     time.Duration   `json:"duration"`
	History      []AttemptResult `json:"history,omitempty"`
	Cost         *CostEstimate   `json:"cost,omitempty"`
	Error        string          `json:"error,omitempty"`
}
