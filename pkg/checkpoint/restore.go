package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type RestoreMode string

const (
	RestoreModeConversation RestoreMode = "conversation"
	RestoreModeWorkspace    RestoreMode = "workspace"
	RestoreModeBoth         RestoreMode = "both"
)

// RestoreResult carries whatever the requested mode produced: the state
// clone for the caller to install, and the manifest of extracted files.
type RestoreResult struct {
	Summary  Summary
	State    json.RawMessage
	Manifest *Manifest
}

// Restore rolls a workflow back to a checkpoint. Conversation mode hands
// back the state snapshot; workspace mode extracts the archived files over
// targetPath. Restoring a checkpoint captured without its workspace is a
// no-op for the workspace half, never an error. A failed extraction aborts
// and propagates; a half restored workspace is reported, not hidden.
func (m *Manager) Restore(ctx context.Context, checkpointID string, mode RestoreMode, targetPath string) (*RestoreResult, error) {
	dir, summary, err := m.find(checkpointID)
	if err != nil {
		return nil, err
	}

	lock := m.workflowLock(summary.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	result := &RestoreResult{Summary: *summary}

	if mode == RestoreModeConversation || mode == RestoreModeBoth {
		var state json.RawMessage
		if err := readJSON(filepath.Join(dir, "state.json"), &state); err != nil {
			return nil, errors.Wrap(err, "failed to read checkpoint state")
		}
		result.State = state
	}

	if (mode == RestoreModeWorkspace || mode == RestoreModeBoth) && summary.IncludesWorkspace {
		manifest := &Manifest{}
		if err := readJSON(filepath.Join(dir, "manifest.json"), manifest); err != nil {
			return nil, errors.Wrap(err, "failed to read checkpoint manifest")
		}

		filesDir := filepath.Join(dir, "files")
		for _, f := range manifest.Files {
			content, err := os.ReadFile(filepath.Join(filesDir, filepath.FromSlash(f.Path)))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read archived file %s", f.Path)
			}

			dest := filepath.Join(targetPath, filepath.FromSlash(f.Path))
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return nil, errors.Wrapf(err, "failed to create directory for %s", f.Path)
			}
			if err := os.WriteFile(dest, content, 0644); err != nil {
				return nil, errors.Wrapf(err, "failed to extract %s", f.Path)
			}
		}
		result.Manifest = manifest
	}

	return result, nil
}

// find scans the store for the checkpoint directory. Checkpoint ids are
// unique across workflows so the first hit wins.
func (m *Manager) find(checkpointID string) (string, *Summary, error) {
	workflows, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, errors.Errorf("checkpoint %s not found", checkpointID)
		}
		return "", nil, errors.Wrap(err, "failed to read checkpoint root")
	}

	for _, w := range workflows {
		if !w.IsDir() {
			continue
		}
		dir := filepath.Join(m.root, w.Name(), checkpointID)
		if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err != nil {
			continue
		}
		var s Summary
		if err := readJSON(filepath.Join(dir, "metadata.json"), &s); err != nil {
			return "", nil, errors.Wrapf(err, "failed to read checkpoint %s metadata", checkpointID)
		}
		return dir, &s, nil
	}

	return "", nil, errors.Errorf("checkpoint %s not found", checkpointID)
}
