package engine

import "time"

// Status is the lifecycle state of a run or of one step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// StepResult records one step's execution.
type StepResult struct {
	Order      int       `json:"order"`
	Agent      string    `json:"agent"`
	Action     string    `json:"action"`
	Status     Status    `json:"status"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run is one execution instance of a workflow. It is created pending,
// moves to running, and ends succeeded or failed; the persisted record
// tracks every transition, so progress survives a crash mid-run.
type Run struct {
	ID         string            `json:"run_id"`
	Workflow   string            `json:"workflow"`
	Version    string            `json:"version,omitempty"`
	Status     Status            `json:"status"`
	Seeds      map[string]string `json:"seeds,omitempty"`
	Steps      []StepResult      `json:"steps"`
	FailedStep int               `json:"failed_step,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}
