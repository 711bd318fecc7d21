package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stagehand-dev/stagehand/pkg/param"
)

// Asset is a reusable snippet from the shared asset library, kept on disk
// beside the project directories. Its id is the library-relative path.
type Asset struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

func assetDir() string {
	return filepath.Join(param.Get().WorkspaceDir, "_assets")
}

// FindAssets returns library assets whose name matches the query,
// best (shortest) match first.
func FindAssets(query string) ([]Asset, error) {
	root := assetDir()
	needle := strings.ToLower(query)

	var assets []Asset
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if needle != "" && !strings.Contains(strings.ToLower(rel), needle) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		assets = append(assets, Asset{
			ID:      filepath.ToSlash(rel),
			Name:    d.Name(),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search assets: %w", err)
	}

	sort.Slice(assets, func(i, j int) bool { return len(assets[i].ID) < len(assets[j].ID) })
	return assets, nil
}

func GetAsset(id string) (*Asset, error) {
	assets, err := FindAssets("")
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("asset %s not found", id)
}
