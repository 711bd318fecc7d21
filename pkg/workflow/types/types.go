package types

import "time"

type WorkflowStatus string

const (
	WorkflowStatusPlanning  WorkflowStatus = "planning"
	WorkflowStatusExecuting WorkflowStatus = "executing"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusApproved  StepStatus = "approved"
	StepStatusExecuting StepStatus = "executing"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Workflow is a durable unit of multi-turn work. Context carries an opaque
// blob the orchestration layer round-trips; the state machine never reads
// into it.
type Workflow struct {
	ID                        string         `json:"id"`
	ProjectID                 string         `json:"projectId"`
	Status                    WorkflowStatus `json:"status"`
	CurrentStep               int            `json:"currentStep"`
	Context                   string         `json:"context,omitempty"`
	Steps                     []Step         `json:"steps"`
	CreatedAt                 time.Time      `json:"createdAt"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
	LastCheckpointedMessageAt *time.Time     `json:"lastCheckpointedMessageAt,omitempty"`
}

// Step is one slot in a workflow, usually bound to a proposal once the
// model commits to an action.
type Step struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflowId"`
	Index      int        `json:"index"`
	Status     StepStatus `json:"status"`
	ProposalID *string    `json:"proposalId,omitempty"`
	ToolName   *string    `json:"toolName,omitempty"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// StepPatch is a partial step update. Nil fields are left unchanged.
type StepPatch struct {
	Status     *StepStatus
	ProposalID *string
	Error      *string
}
