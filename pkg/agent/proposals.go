package agent

import (
	"encoding/json"
	"fmt"

	llmtypes "github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/merge"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

// ProposalDraft is an unpersisted proposal produced by one turn sequence.
// The caller owns persistence and approval routing.
type ProposalDraft struct {
	Type        workspacetypes.ProposalType `json:"type"`
	Fallback    bool                        `json:"fallback,omitempty"`
	FileChanges []workspacetypes.FileChange `json:"fileChanges,omitempty"`
	Payload     map[string]interface{}      `json:"payload,omitempty"`
	Summary     string                      `json:"summary,omitempty"`
}

// PlanUpdate is the model declaring or revising its step list.
type PlanUpdate struct {
	Steps       []string `json:"steps"`
	CurrentStep int      `json:"currentStep"`
}

func mapAction(opts Options, action llmtypes.Action, raw string) (*Result, error) {
	result := &Result{Action: &action, RawText: raw}

	switch action.Type {
	case llmtypes.ActionTypeContext:
		// Read-only action with the chain budget spent; nothing to
		// propose, the caller decides whether to run it.
		return result, nil

	case llmtypes.ActionTypePlanning:
		update, err := planUpdateFromAction(action)
		if err != nil {
			return nil, err
		}
		result.PlanUpdate = update
		return result, nil

	case llmtypes.ActionTypeEdit:
		draft, err := opts.editDraft(action)
		if err != nil {
			return nil, err
		}
		result.Proposals = append(result.Proposals, *draft)
		return result, nil

	case llmtypes.ActionTypeObject:
		result.Proposals = append(result.Proposals, ProposalDraft{
			Type:    workspacetypes.ProposalTypeObject,
			Payload: action.Params,
		})
		return result, nil

	case llmtypes.ActionTypeAsset:
		result.Proposals = append(result.Proposals, ProposalDraft{
			Type:    workspacetypes.ProposalTypeAsset,
			Payload: action.Params,
		})
		return result, nil

	case llmtypes.ActionTypeCompletion:
		summary, _ := action.Params["summary"].(string)
		result.Done = true
		result.Proposals = append(result.Proposals, ProposalDraft{
			Type:    workspacetypes.ProposalTypeCompletion,
			Summary: summary,
		})
		return result, nil

	default:
		return nil, fmt.Errorf("unmapped action type %q", action.Type)
	}
}

func (o Options) editDraft(action llmtypes.Action) (*ProposalDraft, error) {
	path, _ := action.Params["path"].(string)

	baseText := ""
	if doc, err := o.DocumentFn(o.ProjectID, path); err == nil {
		baseText = doc.Content
	}

	change := workspacetypes.FileChange{
		Path:     path,
		BaseText: baseText,
		BaseHash: merge.ContentHash(baseText),
	}

	if patch, ok := action.Params["patch"].(string); ok && patch != "" {
		edits, err := merge.EditsFromUnifiedDiff(baseText, []byte(patch))
		if err != nil {
			return nil, fmt.Errorf("patch does not apply to %s: %w", path, err)
		}
		change.Edits = edits
	} else {
		edits, err := rangeEditsFromParams(action.Params["edits"])
		if err != nil {
			return nil, err
		}
		change.Edits = edits
	}

	return &ProposalDraft{
		Type:        workspacetypes.ProposalTypeEdit,
		FileChanges: []workspacetypes.FileChange{change},
	}, nil
}

// rangeEditsFromParams round-trips the already validated edits array
// through JSON into typed range edits.
func rangeEditsFromParams(v interface{}) ([]merge.RangeEdit, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edits: %w", err)
	}

	var raw []struct {
		StartLine int    `json:"startLine"`
		StartChar int    `json:"startChar"`
		EndLine   int    `json:"endLine"`
		EndChar   int    `json:"endChar"`
		NewText   string `json:"newText"`
	}
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode edits: %w", err)
	}

	var edits []merge.RangeEdit
	for _, e := range raw {
		edits = append(edits, merge.RangeEdit{
			Start:   merge.Position{Line: e.StartLine, Character: e.StartChar},
			End:     merge.Position{Line: e.EndLine, Character: e.EndChar},
			NewText: e.NewText,
		})
	}
	return edits, nil
}

func planUpdateFromAction(action llmtypes.Action) (*PlanUpdate, error) {
	encoded, err := json.Marshal(action.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan update: %w", err)
	}

	var update PlanUpdate
	if err := json.Unmarshal(encoded, &update); err != nil {
		return nil, fmt.Errorf("failed to decode plan update: %w", err)
	}
	return &update, nil
}

// fallbackResult synthesizes a safe no-op proposal when the model's output
// had no usable action. It is tagged so approval surfaces can tell intent
// from fallback.
func fallbackResult(raw string, cause error) *Result {
	return &Result{
		RawText: raw,
		Proposals: []ProposalDraft{{
			Type:     workspacetypes.ProposalTypeCompletion,
			Fallback: true,
			Summary:  fmt.Sprintf("no valid action in model response: %v", cause),
		}},
	}
}
