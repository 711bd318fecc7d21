package workspace

import (
	"encoding/json"
	"fmt"
	"strings"

	llmtypes "github.com/stagehand-dev/stagehand/pkg/llm/types"
)

// ExecuteContextAction runs a read-only action against the project and
// returns its JSON-encoded result, suitable for feeding back to the model
// as a tool result.
func ExecuteContextAction(projectID string, action llmtypes.Action) (string, error) {
	if !action.IsReadOnly() {
		return "", fmt.Errorf("action %s is not read-only", action.Name)
	}

	var result interface{}
	switch action.Name {
	case "get_document":
		path, _ := action.Params["path"].(string)
		doc, err := GetDocument(projectID, path)
		if err != nil {
			return "", err
		}
		result = doc
	case "list_documents":
		docs, err := ListDocuments(projectID)
		if err != nil {
			return "", err
		}
		result = map[string]interface{}{"documents": docs}
	default:
		return "", fmt.Errorf("unknown context action %s", action.Name)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode context result: %w", err)
	}
	return string(encoded), nil
}

// BuildProjectContext renders a compact listing of the project's documents
// for inclusion in the system prompt.
func BuildProjectContext(projectID string) (string, error) {
	docs, err := ListDocuments(projectID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "The project is empty.", nil
	}

	var sb strings.Builder
	sb.WriteString("The project contains the following documents:\n")
	for _, d := range docs {
		fmt.Fprintf(&sb, "  - %s (%d bytes)\n", d.Path, d.Size)
	}
	return sb.String(), nil
}
