package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRangeEdits(t *testing.T) {
	tests := map[string]struct {
		text   string
		edits  []RangeEdit
		exp    string
		expErr bool
	}{
		"No edits returns input": {
			text: "a\nb\nc",
			exp:  "a\nb\nc",
		},
		"Replace one line": {
			text: "a\nb\nc",
			edits: []RangeEdit{
				{Start: Position{Line: 1, Character: 0}, End: Position{Line: 2, Character: 0}, NewText: "B\n"},
			},
			exp: "a\nB\nc",
		},
		"Insert at start of line": {
			text: "a\nc",
			edits: []RangeEdit{
				{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 0}, NewText: "b\n"},
			},
			exp: "a\nb\nc",
		},
		"Delete a line": {
			text: "a\nb\nc",
			edits: []RangeEdit{
				{Start: Position{Line: 1, Character: 0}, End: Position{Line: 2, Character: 0}, NewText: ""},
			},
			exp: "a\nc",
		},
		"Multiple edits resolve against the original text": {
			text: "one\ntwo\nthree",
			edits: []RangeEdit{
				{Start: Position{Line: 0, Character: 0}, End: Position{Line: 1, Character: 0}, NewText: "ONE\n"},
				{Start: Position{Line: 2, Character: 0}, End: Position{Line: 2, Character: 5}, NewText: "THREE"},
			},
			exp: "ONE\ntwo\nTHREE",
		},
		"Character past end of line clamps": {
			text: "ab\ncd",
			edits: []RangeEdit{
				{Start: Position{Line: 0, Character: 99}, End: Position{Line: 0, Character: 99}, NewText: "!"},
			},
			exp: "ab!\ncd",
		},
		"Line beyond document fails": {
			text: "a\nb",
			edits: []RangeEdit{
				{Start: Position{Line: 5, Character: 0}, End: Position{Line: 5, Character: 0}, NewText: "x"},
			},
			expErr: true,
		},
		"End before start fails": {
			text: "a\nb",
			edits: []RangeEdit{
				{Start: Position{Line: 1, Character: 0}, End: Position{Line: 0, Character: 0}, NewText: "x"},
			},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ApplyRangeEdits(tc.text, tc.edits)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.exp, got)
		})
	}
}

func TestInverseEditsRoundTrip(t *testing.T) {
	tests := map[string]struct {
		original string
		modified string
	}{
		"Changed middle line":    {original: "a\nb\nc", modified: "a\nB\nc"},
		"Added trailing line":    {original: "a\nb", modified: "a"},
		"Removed trailing line":  {original: "a", modified: "a\nb"},
		"Removed interior line":  {original: "a\nc", modified: "a\nb\nc"},
		"Added interior line":    {original: "a\nb\nc", modified: "a\nc"},
		"Replaced whole text":    {original: "x\ny", modified: "p\nq\nr"},
		"Empty to content":       {original: "", modified: "a\nb"},
		"Content to empty":       {original: "a\nb", modified: ""},
		"Trailing newline kept":  {original: "a\nb\n", modified: "a\nB\n"},
		"Multi line region swap": {original: "a\n1\n2\n3\nz", modified: "a\nx\ny\nz"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			edits := InverseEdits(tc.original, tc.modified)
			got, err := ApplyRangeEdits(tc.modified, edits)
			require.NoError(t, err)
			assert.Equal(t, tc.original, got)
		})
	}
}

func TestInverseEditsIdenticalTexts(t *testing.T) {
	assert.Nil(t, InverseEdits("a\nb", "a\nb"))
}
