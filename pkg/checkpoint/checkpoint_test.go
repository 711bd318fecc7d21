package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	Messages []string `json:"messages"`
	Turns    int      `json:"turns"`
}

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCreateAndRestoreConversation(t *testing.T) {
	m := NewManager(t.TempDir())
	ctx := context.Background()

	state := fakeState{Messages: []string{"hi", "hello"}, Turns: 2}
	summary, err := m.Create(ctx, CreateOptions{
		WorkflowID: "wf1",
		State:      state,
		Note:       "before risky edit",
	})
	require.NoError(t, err)
	assert.Equal(t, "wf1", summary.WorkflowID)
	assert.False(t, summary.IncludesWorkspace)
	assert.Zero(t, summary.FileCount)

	result, err := m.Restore(ctx, summary.ID, RestoreModeConversation, "")
	require.NoError(t, err)

	var restored fakeState
	require.NoError(t, json.Unmarshal(result.State, &restored))
	assert.Equal(t, state, restored)
}

func TestCreateAndRestoreWorkspace(t *testing.T) {
	m := NewManager(t.TempDir())
	ctx := context.Background()

	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "values.yaml", "replicas: 3\n")
	writeWorkspaceFile(t, ws, "templates/deploy.yaml", "kind: Deployment\n")
	writeWorkspaceFile(t, ws, ".git/HEAD", "ref: refs/heads/main\n")
	writeWorkspaceFile(t, ws, "node_modules/pkg/index.js", "module.exports = {}\n")

	summary, err := m.Create(ctx, CreateOptions{
		WorkflowID:       "wf1",
		State:            fakeState{Turns: 1},
		IncludeWorkspace: true,
		WorkspacePath:    ws,
	})
	require.NoError(t, err)
	assert.True(t, summary.IncludesWorkspace)
	assert.Equal(t, 2, summary.FileCount)

	// Drift the workspace, then roll back.
	writeWorkspaceFile(t, ws, "values.yaml", "replicas: 99\n")
	require.NoError(t, os.Remove(filepath.Join(ws, "templates", "deploy.yaml")))

	result, err := m.Restore(ctx, summary.ID, RestoreModeBoth, ws)
	require.NoError(t, err)
	require.NotNil(t, result.Manifest)
	assert.Len(t, result.Manifest.Files, 2)

	got, err := os.ReadFile(filepath.Join(ws, "values.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "replicas: 3\n", string(got))

	got, err = os.ReadFile(filepath.Join(ws, "templates", "deploy.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "kind: Deployment\n", string(got))
}

func TestRestoreWorkspaceModeWithoutWorkspaceSnapshot(t *testing.T) {
	m := NewManager(t.TempDir())
	ctx := context.Background()

	summary, err := m.Create(ctx, CreateOptions{
		WorkflowID: "wf1",
		State:      fakeState{},
	})
	require.NoError(t, err)

	target := t.TempDir()
	result, err := m.Restore(ctx, summary.ID, RestoreModeWorkspace, target)
	require.NoError(t, err)
	assert.Nil(t, result.Manifest)

	// Nothing was extracted.
	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	m := NewManager(t.TempDir())

	_, err := m.Restore(context.Background(), "cp-does-not-exist", RestoreModeBoth, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCreateRequiresWorkflowID(t *testing.T) {
	m := NewManager(t.TempDir())

	_, err := m.Create(context.Background(), CreateOptions{State: fakeState{}})
	require.Error(t, err)
}

func TestRetentionEvictsOldest(t *testing.T) {
	m := NewManager(t.TempDir())
	ctx := context.Background()

	var ids []string
	for i := 0; i < retentionPerWorkflow+5; i++ {
		summary, err := m.Create(ctx, CreateOptions{
			WorkflowID: "wf1",
			State:      fakeState{Turns: i},
			Note:       fmt.Sprintf("checkpoint %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, summary.ID)
	}

	summaries, err := m.List(ctx, "wf1")
	require.NoError(t, err)
	require.Len(t, summaries, retentionPerWorkflow)

	// Newest first, and the oldest five are gone.
	assert.Equal(t, ids[len(ids)-1], summaries[0].ID)
	surviving := map[string]bool{}
	for _, s := range summaries {
		surviving[s.ID] = true
	}
	for _, id := range ids[:5] {
		assert.False(t, surviving[id], "expected %s to be evicted", id)
	}
}

func TestListIsScopedPerWorkflow(t *testing.T) {
	m := NewManager(t.TempDir())
	ctx := context.Background()

	_, err := m.Create(ctx, CreateOptions{WorkflowID: "wf1", State: fakeState{}})
	require.NoError(t, err)
	_, err = m.Create(ctx, CreateOptions{WorkflowID: "wf2", State: fakeState{}})
	require.NoError(t, err)

	one, err := m.List(ctx, "wf1")
	require.NoError(t, err)
	assert.Len(t, one, 1)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
