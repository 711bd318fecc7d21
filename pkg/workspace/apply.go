package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/merge"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

// MergeFileResult is one file's outcome from merging a proposal against
// live content.
type MergeFileResult struct {
	Path       string           `json:"path"`
	MergedText string           `json:"mergedText"`
	Conflicts  []merge.Conflict `json:"conflicts,omitempty"`
}

// MergeStatus distinguishes a mechanically resolvable merge from one that
// needs human resolution.
type MergeStatus string

const (
	MergeStatusMerged   MergeStatus = "merged"
	MergeStatusConflict MergeStatus = "conflict"
)

// MergeProposal reconciles each file change against the caller's current
// text. Any conflict flips the overall status; conflicted spans keep the
// current content.
func MergeProposal(ctx context.Context, p *workspacetypes.Proposal, currentTexts map[string]string) (MergeStatus, []MergeFileResult, error) {
	status := MergeStatusMerged
	var results []MergeFileResult

	for _, fc := range p.FileChanges {
		current, ok := currentTexts[fc.Path]
		if !ok {
			current = fc.BaseText
		}

		proposed, err := fc.Proposed()
		if err != nil {
			return status, nil, fmt.Errorf("failed to resolve proposed text for %s: %w", fc.Path, err)
		}

		outcome := merge.Diff3Merge(fc.BaseText, current, proposed)
		if len(outcome.Conflicts) > 0 {
			status = MergeStatusConflict
			detail := fmt.Sprintf("%s: %d conflicting region(s)", fc.Path, len(outcome.Conflicts))
			if _, err := AppendProposalEvent(ctx, p.ID, workspacetypes.ProposalEventMergeConflict, detail); err != nil {
				logger.Errorf("failed to record merge conflict event: %v", err)
			}
		}

		results = append(results, MergeFileResult{
			Path:       fc.Path,
			MergedText: outcome.MergedText,
			Conflicts:  outcome.Conflicts,
		})
	}

	return status, results, nil
}

// CommitProposal applies an approved edit proposal to the project tree.
// Every file must still match its recorded pre-edit hash; drift is a
// stale failure, not a conflict, and nothing is written.
func CommitProposal(ctx context.Context, projectID string, p *workspacetypes.Proposal) error {
	if p.Status != workspacetypes.ProposalStatusPending {
		return fmt.Errorf("proposal %s is not pending", p.ID)
	}

	// Validate all files before touching any of them.
	merged := make(map[string]string, len(p.FileChanges))
	for _, fc := range p.FileChanges {
		live := ""
		doc, err := GetDocument(projectID, fc.Path)
		switch {
		case err == nil:
			live = doc.Content
		case errors.Is(err, os.ErrNotExist) && fc.BaseText == "":
			// New file; nothing live to compare.
		default:
			return fmt.Errorf("failed to read %s: %w", fc.Path, err)
		}

		if err := merge.CheckFresh(fc.Path, live, fc.BaseHash); err != nil {
			if _, evErr := AppendProposalEvent(ctx, p.ID, workspacetypes.ProposalEventStale, err.Error()); evErr != nil {
				logger.Errorf("failed to record stale event: %v", evErr)
			}
			return err
		}

		if fc.ProposedText != nil {
			merged[fc.Path] = *fc.ProposedText
			continue
		}
		next, err := merge.ApplyRangeEdits(live, fc.Edits)
		if err != nil {
			if _, evErr := AppendProposalEvent(ctx, p.ID, workspacetypes.ProposalEventFailed, err.Error()); evErr != nil {
				logger.Errorf("failed to record failed event: %v", evErr)
			}
			return fmt.Errorf("failed to apply edits to %s: %w", fc.Path, err)
		}
		merged[fc.Path] = next
	}

	for path, text := range merged {
		if err := WriteDocument(projectID, path, text); err != nil {
			if _, evErr := AppendProposalEvent(ctx, p.ID, workspacetypes.ProposalEventFailed, err.Error()); evErr != nil {
				logger.Errorf("failed to record failed event: %v", evErr)
			}
			return err
		}
	}

	if err := MarkProposalApplied(ctx, p.ID); err != nil {
		return err
	}

	return TouchProject(ctx, projectID)
}
