package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/tuvistavie/securerandom"
)

// retentionPerWorkflow caps how many checkpoints each workflow keeps.
// Oldest are evicted by creation time.
const retentionPerWorkflow = 20

// denyDirs are operational directories excluded from workspace capture.
var denyDirs = map[string]bool{
	".git":         true,
	".stagehand":   true,
	"node_modules": true,
}

type ManifestFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
}

type Manifest struct {
	Files []ManifestFile `json:"files"`
}

// Summary is the immutable metadata of one checkpoint.
type Summary struct {
	ID                string     `json:"id"`
	WorkflowID        string     `json:"workflowId"`
	Note              string     `json:"note,omitempty"`
	ProposalID        string     `json:"proposalId,omitempty"`
	MessageAt         *time.Time `json:"messageAt,omitempty"`
	IncludesWorkspace bool       `json:"includesWorkspace"`
	FileCount         int        `json:"fileCount"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type CreateOptions struct {
	WorkflowID       string
	State            interface{}
	Note             string
	ProposalID       string
	MessageAt        *time.Time
	IncludeWorkspace bool

	// WorkspacePath is the directory captured when IncludeWorkspace is
	// set, typically the workflow's project directory.
	WorkspacePath string
}

// Manager owns the checkpoint store on disk. All operations for one
// workflow are serialized so concurrent creates cannot interleave their
// eviction passes.
type Manager struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(dataDir string) *Manager {
	return &Manager{
		root:  filepath.Join(dataDir, "checkpoints"),
		locks: map[string]*sync.Mutex{},
	}
}

func (m *Manager) workflowLock(workflowID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[workflowID] = l
	}
	return l
}

// Create snapshots the orchestration state, and optionally the workspace
// tree, into a new immutable checkpoint. The state is deep cloned through
// JSON so the snapshot never aliases live data. A single unreadable
// workspace file is logged and skipped; losing the manifest is fatal.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Summary, error) {
	if opts.WorkflowID == "" {
		return nil, errors.New("checkpoint requires a workflow id")
	}

	lock := m.workflowLock(opts.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	stateClone, err := json.Marshal(opts.State)
	if err != nil {
		return nil, errors.Wrap(err, "failed to clone orchestration state")
	}

	suffix, err := securerandom.Hex(4)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate checkpoint id")
	}
	now := time.Now()
	id := fmt.Sprintf("cp-%d-%s", now.UnixNano(), suffix)

	dir := filepath.Join(m.root, opts.WorkflowID, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create checkpoint directory")
	}

	manifest := &Manifest{}
	if opts.IncludeWorkspace {
		manifest, err = m.captureWorkspace(opts.WorkspacePath, filepath.Join(dir, "files"))
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}

	summary := &Summary{
		ID:                id,
		WorkflowID:        opts.WorkflowID,
		Note:              opts.Note,
		ProposalID:        opts.ProposalID,
		MessageAt:         opts.MessageAt,
		IncludesWorkspace: opts.IncludeWorkspace,
		FileCount:         len(manifest.Files),
		CreatedAt:         now,
	}

	if err := writeJSON(filepath.Join(dir, "state.json"), json.RawMessage(stateClone)); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, "manifest.json"), manifest); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, "metadata.json"), summary); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	if err := m.evictOldest(opts.WorkflowID); err != nil {
		logger.Errorf("failed to evict old checkpoints for %s: %v", opts.WorkflowID, err)
	}

	return summary, nil
}

// captureWorkspace archives workspacePath under filesDir and returns the
// content-addressed manifest of everything captured.
func (m *Manager) captureWorkspace(workspacePath string, filesDir string) (*Manifest, error) {
	manifest := &Manifest{}
	if workspacePath == "" {
		return manifest, nil
	}

	err := filepath.WalkDir(workspacePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == workspacePath && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if denyDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(workspacePath, path)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// Partial capture beats no checkpoint at all.
			logger.Errorf("skipping unreadable file %s: %v", path, err)
			return nil
		}

		dest := filepath.Join(filesDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, content, 0644); err != nil {
			return err
		}

		sum := sha256.Sum256(content)
		manifest.Files = append(manifest.Files, ManifestFile{
			Path:   filepath.ToSlash(rel),
			Size:   int64(len(content)),
			Sha256: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to capture workspace")
	}

	sort.Slice(manifest.Files, func(i, j int) bool { return manifest.Files[i].Path < manifest.Files[j].Path })
	return manifest, nil
}

// List returns checkpoint summaries newest first, for one workflow or for
// all of them when workflowID is empty.
func (m *Manager) List(ctx context.Context, workflowID string) ([]Summary, error) {
	var workflowDirs []string
	if workflowID != "" {
		workflowDirs = []string{filepath.Join(m.root, workflowID)}
	} else {
		entries, err := os.ReadDir(m.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, errors.Wrap(err, "failed to read checkpoint root")
		}
		for _, e := range entries {
			if e.IsDir() {
				workflowDirs = append(workflowDirs, filepath.Join(m.root, e.Name()))
			}
		}
	}

	var summaries []Summary
	for _, dir := range workflowDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrap(err, "failed to read workflow checkpoints")
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			var s Summary
			if err := readJSON(filepath.Join(dir, e.Name(), "metadata.json"), &s); err != nil {
				logger.Errorf("skipping unreadable checkpoint %s: %v", e.Name(), err)
				continue
			}
			summaries = append(summaries, s)
		}
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.After(summaries[j].CreatedAt) })
	return summaries, nil
}

func (m *Manager) evictOldest(workflowID string) error {
	summaries, err := m.List(context.Background(), workflowID)
	if err != nil {
		return err
	}
	for _, s := range summaries[min(len(summaries), retentionPerWorkflow):] {
		if err := os.RemoveAll(filepath.Join(m.root, workflowID, s.ID)); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Base(path))
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %s", filepath.Base(path))
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", filepath.Base(path))
	}
	return nil
}
