package types

import (
	"time"

	"github.com/stagehand-dev/stagehand/pkg/merge"
)

// Project is the root record documents and workflows hang off.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// DocumentInfo describes one managed document without its content.
type DocumentInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

type Document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Hash    string `json:"hash"`
}

type ProposalStatus string

const (
	ProposalStatusPending ProposalStatus = "pending"
	ProposalStatusApplied ProposalStatus = "applied"
)

type ProposalType string

const (
	ProposalTypeEdit       ProposalType = "edit"
	ProposalTypeObject     ProposalType = "object"
	ProposalTypeAsset      ProposalType = "asset"
	ProposalTypeCompletion ProposalType = "completion"
)

// FileChange is one file's worth of an edit proposal. BaseHash is the
// content hash the edits were computed against; application checks it
// before splicing. Either Edits or ProposedText is set, not both.
type FileChange struct {
	Path         string            `json:"path"`
	BaseHash     string            `json:"baseHash"`
	BaseText     string            `json:"baseText"`
	Edits        []merge.RangeEdit `json:"edits,omitempty"`
	ProposedText *string           `json:"proposedText,omitempty"`
}

// Proposed resolves the change's target text, either the full replacement
// or the base with range edits applied.
func (fc FileChange) Proposed() (string, error) {
	if fc.ProposedText != nil {
		return *fc.ProposedText, nil
	}
	return merge.ApplyRangeEdits(fc.BaseText, fc.Edits)
}

// Proposal is the approvable unit derived from a model action. Once
// applied it is immutable except for appended events.
type Proposal struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflowId"`
	MessageID   string                 `json:"messageId"`
	Type        ProposalType           `json:"type"`
	Status      ProposalStatus         `json:"status"`
	Fallback    bool                   `json:"fallback,omitempty"`
	FileChanges []FileChange           `json:"fileChanges,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	AppliedAt   *time.Time             `json:"appliedAt,omitempty"`
	Events      []ProposalEvent        `json:"events"`
}

type ProposalEvent struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"-"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Proposal event kinds appended over a proposal's lifetime.
const (
	ProposalEventCreated       = "created"
	ProposalEventMergeConflict = "merge-conflict"
	ProposalEventStale         = "stale"
	ProposalEventApplied       = "applied"
	ProposalEventFailed        = "failed"
)

type ChatMessageFromPersona string

const (
	ChatMessageFromPersonaAuto     ChatMessageFromPersona = "auto"
	ChatMessageFromPersonaOperator ChatMessageFromPersona = "operator"
)

type Chat struct {
	ID                 string                  `json:"id"`
	ProjectID          string                  `json:"-"`
	WorkflowID         string                  `json:"workflowId,omitempty"`
	Prompt             string                  `json:"prompt"`
	Response           string                  `json:"response"`
	CreatedAt          time.Time               `json:"createdAt"`
	RespondedAt        *time.Time              `json:"respondedAt,omitempty"`
	MessageFromPersona *ChatMessageFromPersona `json:"messageFromPersona,omitempty"`
}
