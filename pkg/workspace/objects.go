package workspace

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ObjectOp is a structural mutation on the project tree, as opposed to a
// positional text edit.
type ObjectOp struct {
	Op       string      `json:"op"`
	Path     string      `json:"path"`
	ToPath   string      `json:"toPath,omitempty"`
	Content  string      `json:"content,omitempty"`
	Property string      `json:"property,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// ApplyObjectOp executes a structural mutation. set_property treats the
// document as YAML and sets a dotted key path.
func ApplyObjectOp(projectID string, op ObjectOp) error {
	switch op.Op {
	case "create":
		if _, err := GetDocument(projectID, op.Path); err == nil {
			return fmt.Errorf("document %s already exists", op.Path)
		}
		return WriteDocument(projectID, op.Path, op.Content)
	case "delete":
		return DeleteDocument(projectID, op.Path)
	case "move":
		if op.ToPath == "" {
			return fmt.Errorf("move requires toPath")
		}
		return MoveDocument(projectID, op.Path, op.ToPath)
	case "set_property":
		return setDocumentProperty(projectID, op.Path, op.Property, op.Value)
	default:
		return fmt.Errorf("unknown object op %q", op.Op)
	}
}

func setDocumentProperty(projectID string, path string, property string, value interface{}) error {
	if property == "" {
		return fmt.Errorf("set_property requires property")
	}

	doc, err := GetDocument(projectID, path)
	if err != nil {
		return err
	}

	parsed := map[string]interface{}{}
	if strings.TrimSpace(doc.Content) != "" {
		if err := yaml.Unmarshal([]byte(doc.Content), &parsed); err != nil {
			return fmt.Errorf("document %s is not valid yaml: %w", path, err)
		}
	}

	node := parsed
	keys := strings.Split(property, ".")
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[key] = child
		}
		node = child
	}
	node[keys[len(keys)-1]] = value

	updated, err := yaml.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}

	return WriteDocument(projectID, path, string(updated))
}
