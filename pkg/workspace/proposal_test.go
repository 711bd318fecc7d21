package workspace

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stagehand-dev/stagehand/pkg/merge"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/testhelpers"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("STAGEHAND_INTEGRATION") == "" {
		t.Skip("set STAGEHAND_INTEGRATION to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := testhelpers.CreatePostgresContainer(ctx, testhelpers.CreatePostgresContainerOpts{
		CreateSchema: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	require.NoError(t, persistence.InitPostgres(persistence.PostgresOpts{URI: container.ConnectionString}))
	param.Set(param.Params{WorkspaceDir: t.TempDir()})
}

func editProposal(t *testing.T, base, proposed string) *workspacetypes.Proposal {
	t.Helper()

	fc := workspacetypes.FileChange{
		Path:         "doc.txt",
		BaseText:     base,
		BaseHash:     merge.ContentHash(base),
		ProposedText: &proposed,
	}

	p, err := CreateProposal(context.Background(), "wf1", "msg1", workspacetypes.ProposalTypeEdit, false, []workspacetypes.FileChange{fc}, nil, "")
	require.NoError(t, err)
	return p
}

func TestProposalLifecycle(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	base := "a\nb\nc\n"
	require.NoError(t, WriteDocument("p1", "doc.txt", base))

	p := editProposal(t, base, "a\nB\nc\n")
	assert.Equal(t, workspacetypes.ProposalStatusPending, p.Status)

	loaded, err := GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
	require.Len(t, loaded.FileChanges, 1)
	assert.Equal(t, base, loaded.FileChanges[0].BaseText)
	require.Len(t, loaded.Events, 1)
	assert.Equal(t, workspacetypes.ProposalEventCreated, loaded.Events[0].Kind)

	require.NoError(t, CommitProposal(ctx, "p1", loaded))

	doc, err := GetDocument("p1", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nc\n", doc.Content)

	applied, err := GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, workspacetypes.ProposalStatusApplied, applied.Status)
	require.NotNil(t, applied.AppliedAt)

	kinds := make([]string, 0, len(applied.Events))
	for _, e := range applied.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, workspacetypes.ProposalEventApplied)

	// Applying twice fails; applied proposals are immutable.
	require.Error(t, CommitProposal(ctx, "p1", applied))
}

func TestCommitProposalStaleContent(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	base := "a\nb\nc\n"
	require.NoError(t, WriteDocument("p1", "doc.txt", base))

	p := editProposal(t, base, "a\nB\nc\n")

	// The document drifts after approval.
	require.NoError(t, WriteDocument("p1", "doc.txt", "a\nb\nc\nd\n"))

	err := CommitProposal(ctx, "p1", p)
	require.Error(t, err)

	var staleErr *merge.StaleError
	require.True(t, errors.As(err, &staleErr))
	assert.Equal(t, "doc.txt", staleErr.Path)

	// Nothing was written and the proposal stays pending.
	doc, err := GetDocument("p1", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\n", doc.Content)

	loaded, err := GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, workspacetypes.ProposalStatusPending, loaded.Status)

	kinds := make([]string, 0, len(loaded.Events))
	for _, e := range loaded.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, workspacetypes.ProposalEventStale)
}

func TestCommitProposalNewFile(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	p := editProposal(t, "", "fresh content\n")

	require.NoError(t, CommitProposal(ctx, "p1", p))

	doc, err := GetDocument("p1", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "fresh content\n", doc.Content)
}

func TestMergeProposal(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	base := "a\nb\nc\n"
	p := editProposal(t, base, "a\nb\nC\n")

	// A concurrent change on a different line merges cleanly.
	status, results, err := MergeProposal(ctx, p, map[string]string{"doc.txt": "A\nb\nc\n"})
	require.NoError(t, err)
	assert.Equal(t, MergeStatusMerged, status)
	require.Len(t, results, 1)
	assert.Equal(t, "A\nb\nC\n", results[0].MergedText)
	assert.Empty(t, results[0].Conflicts)

	// A concurrent change on the same line conflicts, keeping current.
	status, results, err = MergeProposal(ctx, p, map[string]string{"doc.txt": "a\nb\nX\n"})
	require.NoError(t, err)
	assert.Equal(t, MergeStatusConflict, status)
	require.Len(t, results, 1)
	require.Len(t, results[0].Conflicts, 1)
	assert.Equal(t, "a\nb\nX\n", results[0].MergedText)

	loaded, err := GetProposal(ctx, p.ID)
	require.NoError(t, err)

	kinds := make([]string, 0, len(loaded.Events))
	for _, e := range loaded.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, workspacetypes.ProposalEventMergeConflict)
}
