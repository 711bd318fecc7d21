package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAction(t *testing.T) {
	tests := map[string]struct {
		action string
		params map[string]interface{}
		expErr string
	}{
		"get_document requires path": {
			action: "get_document",
			params: map[string]interface{}{},
			expErr: `missing required parameter "path"`,
		},
		"Unexpected parameter rejected": {
			action: "get_document",
			params: map[string]interface{}{"path": "a", "mode": "raw"},
			expErr: `unexpected parameter "mode"`,
		},
		"edit_document requires edits or patch": {
			action: "edit_document",
			params: map[string]interface{}{"path": "a"},
			expErr: "one of edits or patch is required",
		},
		"edit_document with patch is fine": {
			action: "edit_document",
			params: map[string]interface{}{"path": "a", "patch": "--- a/a\n+++ b/a\n"},
		},
		"object_op rejects unknown op": {
			action: "object_op",
			params: map[string]interface{}{"op": "explode", "path": "x"},
			expErr: "must be one of",
		},
		"object_op move requires toPath": {
			action: "object_op",
			params: map[string]interface{}{"op": "move", "path": "a.yaml"},
			expErr: "move requires toPath",
		},
		"object_op accepts set_property": {
			action: "object_op",
			params: map[string]interface{}{
				"op":       "set_property",
				"path":     "values.yaml",
				"property": "replicas",
				"value":    3.0,
			},
		},
		"insert_asset requires query or assetId": {
			action: "insert_asset",
			params: map[string]interface{}{"path": "doc.md"},
			expErr: "one of query or assetId is required",
		},
		"update_plan rejects empty steps": {
			action: "update_plan",
			params: map[string]interface{}{"steps": []interface{}{}},
			expErr: "steps must not be empty",
		},
		"update_plan rejects non-string steps": {
			action: "update_plan",
			params: map[string]interface{}{"steps": []interface{}{"a", 2.0}},
			expErr: "steps[1] is not a string",
		},
		"update_plan currentStep must be integral": {
			action: "update_plan",
			params: map[string]interface{}{"steps": []interface{}{"a"}, "currentStep": 1.5},
			expErr: "not an integer",
		},
		"complete with no params": {
			action: "complete",
			params: map[string]interface{}{},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := validateAction(tc.action, tc.params)

			if tc.expErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expErr)
		})
	}
}

func TestValidateActionEditLimits(t *testing.T) {
	edits := make([]interface{}, maxEditsPerAction+1)
	for i := range edits {
		edits[i] = map[string]interface{}{
			"startLine": 0.0, "startChar": 0.0, "endLine": 0.0, "endChar": 0.0, "newText": "x",
		}
	}

	err := validateAction("edit_document", map[string]interface{}{"path": "a", "edits": edits})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("exceeds %d entries", maxEditsPerAction))
}

func TestValidateEditsFieldTypes(t *testing.T) {
	err := validateAction("edit_document", map[string]interface{}{
		"path": "a",
		"edits": []interface{}{
			map[string]interface{}{"startLine": "zero", "startChar": 0.0, "endLine": 0.0, "endChar": 0.0, "newText": ""},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edits[0].startLine")

	err = validateAction("edit_document", map[string]interface{}{
		"path": "a",
		"edits": []interface{}{
			map[string]interface{}{"startLine": 0.0, "startChar": 0.0, "endLine": 0.0, "endChar": 0.0},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newText")
}
