package llm

import (
	"errors"
	"testing"

	"github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAction(t *testing.T) {
	tests := map[string]struct {
		raw       string
		expName   string
		expType   types.ActionType
		expParams map[string]interface{}
		expErr    error
		expSchema bool
	}{
		"Simple envelope": {
			raw:     `I'll fetch that file. <stagehandAction name="get_document">{"path": "values.yaml"}</stagehandAction>`,
			expName: "get_document",
			expType: types.ActionTypeContext,
			expParams: map[string]interface{}{
				"path": "values.yaml",
			},
		},
		"First well-formed envelope wins": {
			raw: `<stagehandAction name="get_document">{"path": "a.txt"}</stagehandAction>` +
				`<stagehandAction name="get_document">{"path": "b.txt"}</stagehandAction>`,
			expName: "get_document",
			expType: types.ActionTypeContext,
			expParams: map[string]interface{}{
				"path": "a.txt",
			},
		},
		"Self closing envelope with no parameters": {
			raw:       `<stagehandAction name="list_documents"/>`,
			expName:   "list_documents",
			expType:   types.ActionTypeContext,
			expParams: map[string]interface{}{},
		},
		"Self closing envelope before a full one wins": {
			raw: `<stagehandAction name="list_documents"/> and then ` +
				`<stagehandAction name="get_document">{"path": "a.txt"}</stagehandAction>`,
			expName:   "list_documents",
			expType:   types.ActionTypeContext,
			expParams: map[string]interface{}{},
		},
		"No envelope at all": {
			raw:    "Here is my analysis of the workspace.",
			expErr: ErrNoActionFound,
		},
		"Unknown action name": {
			raw:       `<stagehandAction name="launch_rockets">{}</stagehandAction>`,
			expSchema: true,
		},
		"Body is not JSON": {
			raw:       `<stagehandAction name="get_document">path=values.yaml</stagehandAction>`,
			expSchema: true,
		},
		"Double encoded parameters are accepted": {
			raw:     `<stagehandAction name="get_document">"{\"path\": \"values.yaml\"}"</stagehandAction>`,
			expName: "get_document",
			expType: types.ActionTypeContext,
			expParams: map[string]interface{}{
				"path": "values.yaml",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			action, err := ExtractAction(tc.raw)

			if tc.expErr != nil {
				require.ErrorIs(t, err, tc.expErr)
				return
			}
			if tc.expSchema {
				var schemaErr *SchemaError
				require.True(t, errors.As(err, &schemaErr))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expName, action.Name)
			assert.Equal(t, tc.expType, action.Type)
			assert.Equal(t, tc.expParams, action.Params)
		})
	}
}

func TestExtractActionEditDocument(t *testing.T) {
	raw := `<stagehandAction name="edit_document">{"path": "readme.md", "edits": [{"startLine": 0, "startChar": 0, "endLine": 1, "endChar": 0, "newText": "# Title\n"}]}</stagehandAction>`

	action, err := ExtractAction(raw)
	require.NoError(t, err)
	assert.Equal(t, types.ActionTypeEdit, action.Type)
	assert.True(t, action.IsReadOnly() == false)

	edits, ok := action.Params["edits"].([]interface{})
	require.True(t, ok)
	assert.Len(t, edits, 1)
}

func TestExtractActionStringEncodedEdits(t *testing.T) {
	// The edits array arrives as a JSON string; normalization coerces it.
	raw := `<stagehandAction name="edit_document">{"path": "readme.md", "edits": "[{\"startLine\": 0, \"startChar\": 0, \"endLine\": 0, \"endChar\": 5, \"newText\": \"hi\"}]"}</stagehandAction>`

	action, err := ExtractAction(raw)
	require.NoError(t, err)

	_, ok := action.Params["edits"].([]interface{})
	assert.True(t, ok)
}

func TestExtractActionReadOnlyClassification(t *testing.T) {
	readOnly, err := ExtractAction(`<stagehandAction name="get_document">{"path": "a"}</stagehandAction>`)
	require.NoError(t, err)
	assert.True(t, readOnly.IsReadOnly())

	mutating, err := ExtractAction(`<stagehandAction name="complete">{"summary": "done"}</stagehandAction>`)
	require.NoError(t, err)
	assert.False(t, mutating.IsReadOnly())
}

func TestNormalizeParamsDoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{
		"edits": `[{"startLine": 0}]`,
		"path":  "a.txt",
	}

	out := NormalizeParams("edit_document", in)

	assert.IsType(t, "", in["edits"])
	_, ok := out["edits"].([]interface{})
	assert.True(t, ok)
	assert.Equal(t, "a.txt", out["path"])
}

func TestNormalizeParamsLeavesNonJSONStringsAlone(t *testing.T) {
	in := map[string]interface{}{
		"edits": "not json",
	}

	out := NormalizeParams("edit_document", in)
	assert.Equal(t, "not json", out["edits"])
}
