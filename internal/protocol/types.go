package protocol

import "time"

// StepEvent is a status-change notification emitted every time an execution
// record transitions state. Delivery to observers is at-least-once; consumers
// must tolerate duplicates and out-of-order events across different steps.
type StepEvent struct {
	ExecutionID string    `json:"execution_id"`
	StepID      string    `json:"step_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	OldState    string    `json:"old_state"`
	NewState    string    `json:"new_state"`
	Attempt     int       `json:"attempt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HealthReport is the payload returned by the get_health RPC and /health endpoint.
type HealthReport struct {
	Status    string                 `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is a single health check outcome.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
