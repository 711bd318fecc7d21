package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stagehand-dev/stagehand/pkg/merge"
	"github.com/stagehand-dev/stagehand/pkg/param"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

// denyDirs are operational directories never listed, captured, or edited.
var denyDirs = map[string]bool{
	".git":         true,
	".stagehand":   true,
	"node_modules": true,
}

// ProjectDir is where the project's managed documents live on disk.
func ProjectDir(projectID string) string {
	return filepath.Join(param.Get().WorkspaceDir, projectID)
}

// resolveDocumentPath joins path under the project directory and rejects
// anything that escapes it.
func resolveDocumentPath(projectID string, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty document path")
	}

	root := ProjectDir(projectID)
	full := filepath.Join(root, filepath.FromSlash(path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("document path %q escapes the project", path)
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if denyDirs[part] {
			return "", fmt.Errorf("document path %q is not managed", path)
		}
	}
	return full, nil
}

func GetDocument(projectID string, path string) (*workspacetypes.Document, error) {
	full, err := resolveDocumentPath(projectID, path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	return &workspacetypes.Document{
		Path:    path,
		Content: string(content),
		Hash:    merge.ContentHash(string(content)),
	}, nil
}

// ListDocuments walks the project tree and returns managed documents
// sorted by path.
func ListDocuments(projectID string) ([]workspacetypes.DocumentInfo, error) {
	root := ProjectDir(projectID)

	var docs []workspacetypes.DocumentInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if denyDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		docs = append(docs, workspacetypes.DocumentInfo{
			Path: filepath.ToSlash(rel),
			Size: info.Size(),
			Hash: merge.ContentHash(string(content)),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to walk project %s: %w", projectID, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func WriteDocument(projectID string, path string, content string) error {
	full, err := resolveDocumentPath(projectID, path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

func DeleteDocument(projectID string, path string) error {
	full, err := resolveDocumentPath(projectID, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

func MoveDocument(projectID string, fromPath string, toPath string) error {
	from, err := resolveDocumentPath(projectID, fromPath)
	if err != nil {
		return err
	}
	to, err := resolveDocumentPath(projectID, toPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move document %s to %s: %w", fromPath, toPath, err)
	}
	return nil
}
