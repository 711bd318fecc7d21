package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTripPatch(t *testing.T, original, modified string) {
	t.Helper()

	patch, err := GeneratePatch("doc.txt", original, modified)
	require.NoError(t, err)
	require.NotEmpty(t, patch)

	edits, err := EditsFromUnifiedDiff(original, []byte(patch))
	require.NoError(t, err)

	got, err := ApplyRangeEdits(original, edits)
	require.NoError(t, err)
	assert.Equal(t, modified, got)
}

func TestPatchRoundTrip(t *testing.T) {
	tests := map[string]struct {
		original string
		modified string
	}{
		"Replace middle line":   {original: "a\nb\nc\n", modified: "a\nB\nc\n"},
		"Insert interior line":  {original: "a\nc\n", modified: "a\nb\nc\n"},
		"Delete trailing line":  {original: "a\nb\nc\n", modified: "a\nb\n"},
		"Append at end":         {original: "a\nb\n", modified: "a\nb\nc\n"},
		"No trailing newline":   {original: "a\nb", modified: "a\nB"},
		"Multiple hunks":        {original: "1\n2\n3\n4\n5\n6\n7\n8\n9\n", modified: "ONE\n2\n3\n4\n5\n6\n7\n8\nNINE\n"},
		"Replace several lines": {original: "a\nb\nc\nd\n", modified: "a\nx\ny\nz\nd\n"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			roundTripPatch(t, tc.original, tc.modified)
		})
	}
}

func TestGeneratePatchIdenticalTexts(t *testing.T) {
	patch, err := GeneratePatch("doc.txt", "a\nb\n", "a\nb\n")
	require.NoError(t, err)
	assert.Empty(t, patch)
}

func TestEditsFromUnifiedDiffRejectsMismatchedContent(t *testing.T) {
	patch, err := GeneratePatch("doc.txt", "a\nb\nc\n", "a\nB\nc\n")
	require.NoError(t, err)

	// Same shape, different content at the deleted line.
	_, err = EditsFromUnifiedDiff("a\nx\nc\n", []byte(patch))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not apply")
}

func TestEditsFromUnifiedDiffRejectsGarbage(t *testing.T) {
	_, err := EditsFromUnifiedDiff("a\n", []byte("not a diff"))
	require.Error(t, err)
}
