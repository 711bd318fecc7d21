package merge

import (
	"fmt"
	"sort"
	"strings"
)

// Position is a zero-based line/character location in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// RangeEdit replaces the text between Start (inclusive) and End (exclusive)
// with NewText. Positions are resolved against the original document only;
// edits must not overlap.
type RangeEdit struct {
	Start   Position `json:"start"`
	End     Position `json:"end"`
	NewText string   `json:"newText"`
}

// ApplyRangeEdits applies positional edits to text. Every position is
// converted to a byte offset against the original text, then the edits are
// spliced right to left so earlier offsets stay valid. An empty edit list
// returns the input unchanged.
func ApplyRangeEdits(text string, edits []RangeEdit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}

	type resolved struct {
		start, end int
		newText    string
	}

	lineOffsets := computeLineOffsets(text)

	resolvedEdits := make([]resolved, 0, len(edits))
	for i, edit := range edits {
		start, err := offsetFor(text, lineOffsets, edit.Start)
		if err != nil {
			return "", fmt.Errorf("edit %d start: %w", i, err)
		}
		end, err := offsetFor(text, lineOffsets, edit.End)
		if err != nil {
			return "", fmt.Errorf("edit %d end: %w", i, err)
		}
		if end < start {
			return "", fmt.Errorf("edit %d: end precedes start", i)
		}
		resolvedEdits = append(resolvedEdits, resolved{start: start, end: end, newText: edit.NewText})
	}

	sort.Slice(resolvedEdits, func(i, j int) bool {
		return resolvedEdits[i].start > resolvedEdits[j].start
	})

	out := text
	for _, edit := range resolvedEdits {
		out = out[:edit.start] + edit.newText + out[edit.end:]
	}

	return out, nil
}

func computeLineOffsets(text string) []int {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func offsetFor(text string, lineOffsets []int, pos Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("negative position %d:%d", pos.Line, pos.Character)
	}
	if pos.Line >= len(lineOffsets) {
		return 0, fmt.Errorf("line %d beyond end of document (%d lines)", pos.Line, len(lineOffsets))
	}

	lineStart := lineOffsets[pos.Line]
	lineEnd := len(text)
	if pos.Line+1 < len(lineOffsets) {
		lineEnd = lineOffsets[pos.Line+1] - 1
	}

	// Character positions past the end of the line clamp to it; models
	// routinely overshoot by a column or two.
	offset := lineStart + pos.Character
	if offset > lineEnd {
		offset = lineEnd
	}
	return offset, nil
}

// InverseEdits derives the edits that transform modified back into
// original. The changed region is found by trimming the common line prefix
// and suffix, so the result is a single range edit in modified coordinates
// (or none when the texts are equal).
func InverseEdits(original, modified string) []RangeEdit {
	if original == modified {
		return nil
	}

	modLines := strings.Split(modified, "\n")
	origLines := strings.Split(original, "\n")

	prefix := 0
	for prefix < len(modLines) && prefix < len(origLines) && modLines[prefix] == origLines[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(modLines)-prefix && suffix < len(origLines)-prefix &&
		modLines[len(modLines)-1-suffix] == origLines[len(origLines)-1-suffix] {
		suffix++
	}

	replacement := strings.Join(origLines[prefix:len(origLines)-suffix], "\n")

	if prefix == len(modLines) {
		// Pure append; insert after the last line.
		last := len(modLines) - 1
		pos := Position{Line: last, Character: len(modLines[last])}
		return []RangeEdit{{Start: pos, End: pos, NewText: "\n" + replacement}}
	}

	if suffix == 0 {
		// Region reaches end of document; anchor End at the tail of the
		// last line rather than a line past the end.
		last := len(modLines) - 1
		start := Position{Line: prefix, Character: 0}
		if replacement == "" && prefix > 0 {
			// Trailing lines are being removed outright; the separating
			// newline goes with them.
			start = Position{Line: prefix - 1, Character: len(modLines[prefix-1])}
		}
		return []RangeEdit{{
			Start:   start,
			End:     Position{Line: last, Character: len(modLines[last])},
			NewText: replacement,
		}}
	}

	if len(origLines)-suffix > prefix {
		replacement += "\n"
	}
	return []RangeEdit{{
		Start:   Position{Line: prefix, Character: 0},
		End:     Position{Line: len(modLines) - suffix, Character: 0},
		NewText: replacement,
	}}
}
