package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff3MergeDisjointEdits(t *testing.T) {
	base := "a\nb\nc\n"
	current := "a\nB\nc\n"
	proposed := "a\nb\nC\n"

	result := Diff3Merge(base, current, proposed)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "a\nB\nC\n", result.MergedText)
}

func TestDiff3MergeIdenticalEdits(t *testing.T) {
	base := "a\nb\nc\n"
	current := "a\nX\nc\n"
	proposed := "a\nX\nc\n"

	result := Diff3Merge(base, current, proposed)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "a\nX\nc\n", result.MergedText)
}

func TestDiff3MergeConflictKeepsCurrent(t *testing.T) {
	base := "a\nb\nc\n"
	current := "a\nB\nc\n"
	proposed := "a\nP\nc\n"

	result := Diff3Merge(base, current, proposed)

	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, 1, conflict.StartLine)
	assert.Equal(t, 2, conflict.EndLine)
	assert.Equal(t, "b\n", conflict.Base)
	assert.Equal(t, "B\n", conflict.Current)
	assert.Equal(t, "P\n", conflict.Proposed)

	// The conflicted span retains current's content.
	assert.Equal(t, "a\nB\nc\n", result.MergedText)
}

func TestDiff3MergeOnlyProposedChanged(t *testing.T) {
	base := "a\nb\nc\n"
	proposed := "a\nb\nc\nd\n"

	result := Diff3Merge(base, base, proposed)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, proposed, result.MergedText)
}

func TestDiff3MergeOnlyCurrentChanged(t *testing.T) {
	base := "a\nb\nc\n"
	current := "b\nc\n"

	result := Diff3Merge(base, current, base)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, current, result.MergedText)
}

func TestDiff3MergeCurrentEqualsProposed(t *testing.T) {
	result := Diff3Merge("a\nb\n", "x\ny\n", "x\ny\n")

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "x\ny\n", result.MergedText)
}

func TestDiff3MergeProposedDeletion(t *testing.T) {
	base := "a\nb\nc\n"
	current := "a\nb\nc\nd\n"
	proposed := "a\nc\n"

	result := Diff3Merge(base, current, proposed)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "a\nc\nd\n", result.MergedText)
}

func TestDiff3MergeNoTrailingNewline(t *testing.T) {
	base := "a\nb\nc"
	current := "a\nB\nc"
	proposed := "a\nb\nc\nd"

	result := Diff3Merge(base, current, proposed)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "a\nB\nc\nd", result.MergedText)
}

func TestDiff3MergeMultipleConflicts(t *testing.T) {
	base := "1\n2\n3\n4\n5\n"
	current := "one\n2\n3\n4\nfive\n"
	proposed := "uno\n2\n3\n4\ncinco\n"

	result := Diff3Merge(base, current, proposed)

	require.Len(t, result.Conflicts, 2)
	assert.Equal(t, "one\n2\n3\n4\nfive\n", result.MergedText)
}
