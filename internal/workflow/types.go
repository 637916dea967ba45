package workflow

import (
	"context"
	"fmt"
	"time"
)

// StepState is the lifecycle state of a single execution record.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
	StepSkipped   StepState = "skipped"
)

// Terminal reports whether the state is final. A record never changes once terminal.
func (s StepState) Terminal() bool {
	return s == StepSucceeded || s == StepFailed || s == StepSkipped
}

// ExecutionState is the lifecycle state of a whole workflow execution.
type ExecutionState string

const (
	ExecutionRunning   ExecutionState = "running"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
)

// ErrorKind classifies step failures for diagnostics and retry policy.
type ErrorKind string

const (
	ErrorKindAdapter   ErrorKind = "adapter"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindCancelled ErrorKind = "cancelled"
)

// StepError is a structured failure reason attached to a record.
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ConfigurationError indicates a malformed workflow definition (cyclic
// dependency, unknown agent id, invalid retry/timeout values). It is fatal at
// load time and never surfaced mid-run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "workflow configuration: " + e.Reason
}

// StepDefinition is the static descriptor of one workflow step. Definitions
// are immutable after load.
type StepDefinition struct {
	ID             string            `json:"id" yaml:"id"`
	AgentID        string            `json:"agent_id" yaml:"agent"`
	DependsOn      []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	MaxRetries     int               `json:"max_retries" yaml:"max_retries"`
	TimeoutSeconds float64           `json:"timeout_seconds" yaml:"timeout"`
	// InputMapping maps an upstream step id to the variable name its output is
	// injected under. Unmapped dependencies default to "<dep id>_result".
	InputMapping map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
}

// Timeout returns the per-attempt time budget.
func (d StepDefinition) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds * float64(time.Second))
}

// WorkflowDefinition is an ordered set of step definitions. Declaration order
// is the tie-break between independent steps, so runs are reproducible.
type WorkflowDefinition struct {
	Name  string           `json:"name" yaml:"name"`
	Steps []StepDefinition `json:"steps" yaml:"steps"`
}

// ExecutionRecord tracks one step's run within an execution. It is mutated
// only by the coordinator goroutine driving that step and is immutable once
// in a terminal state.
type ExecutionRecord struct {
	StepID     string     `json:"step_id"`
	State      StepState  `json:"state"`
	Attempt    int        `json:"attempt"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Output     string     `json:"output,omitempty"`
	// Error holds the most recent attempt's failure while retrying, and the
	// final failure once the record is terminal.
	Error *StepError `json:"error,omitempty"`
}

// Snapshot is an immutable copy of a workflow execution, safe to hand to
// readers while the run is still in flight.
type Snapshot struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	State      ExecutionState             `json:"state"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
	Records    map[string]ExecutionRecord `json:"records"`
}

// Adapter is the contract an agent implementation fulfils. Invoke must honor
// ctx cancellation on a best-effort basis and must tolerate re-invocation on
// retry: the coordinator does not deduplicate side effects of repeated attempts.
type Adapter interface {
	Invoke(ctx context.Context, stepID string, input map[string]string) (string, error)
}

// AdapterRegistry resolves agent ids to adapters. Resolution happens once per
// workflow at load time; an unknown id is a ConfigurationError.
type AdapterRegistry interface {
	Lookup(agentID string) (Adapter, bool)
}
