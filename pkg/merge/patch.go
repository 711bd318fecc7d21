package merge

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// EditsFromUnifiedDiff converts a unified diff into range edits against
// original. Hunk coordinates are validated against the text so a patch
// generated for different content fails instead of splicing garbage.
func EditsFromUnifiedDiff(original string, patch []byte) ([]RangeEdit, error) {
	fileDiff, err := diff.ParseFileDiff(patch)
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}

	origLines := strings.Split(original, "\n")
	var edits []RangeEdit

	for _, hunk := range fileDiff.Hunks {
		line := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// Insert-only hunks anchor after OrigStartLine.
			line = int(hunk.OrigStartLine)
		}
		if line < 0 || line > len(origLines) {
			return nil, fmt.Errorf("hunk start %d out of range for %d line document", hunk.OrigStartLine, len(origLines))
		}

		regionStart := -1
		var insLines []string
		flush := func() {
			if regionStart < 0 && len(insLines) == 0 {
				return
			}
			start := regionStart
			if start < 0 {
				start = line
			}
			edits = append(edits, regionEdit(origLines, start, line, insLines))
			regionStart = -1
			insLines = nil
		}

		body := strings.Split(strings.TrimSuffix(string(hunk.Body), "\n"), "\n")
		for _, raw := range body {
			if raw == "" {
				raw = " "
			}
			switch raw[0] {
			case ' ':
				flush()
				line++
			case '-':
				if regionStart < 0 {
					regionStart = line
				}
				if line >= len(origLines) || origLines[line] != raw[1:] {
					return nil, fmt.Errorf("hunk does not apply at line %d", line+1)
				}
				line++
			case '+':
				if regionStart < 0 {
					regionStart = line
				}
				insLines = append(insLines, raw[1:])
			case '\\':
				// "No newline at end of file" marker.
			default:
				return nil, fmt.Errorf("malformed hunk line %q", raw)
			}
		}
		flush()
	}

	return edits, nil
}

// regionEdit maps a replacement of original lines [start, end) with
// insLines onto a RangeEdit anchored in the original text.
func regionEdit(origLines []string, start, end int, insLines []string) RangeEdit {
	replacement := strings.Join(insLines, "\n")

	if start >= len(origLines) {
		last := len(origLines) - 1
		pos := Position{Line: last, Character: len(origLines[last])}
		return RangeEdit{Start: pos, End: pos, NewText: "\n" + replacement}
	}

	if end >= len(origLines) {
		last := len(origLines) - 1
		return RangeEdit{
			Start:   Position{Line: start, Character: 0},
			End:     Position{Line: last, Character: len(origLines[last])},
			NewText: replacement,
		}
	}

	if len(insLines) > 0 {
		replacement += "\n"
	}
	return RangeEdit{
		Start:   Position{Line: start, Character: 0},
		End:     Position{Line: end, Character: 0},
		NewText: replacement,
	}
}

// GeneratePatch renders the line differences between original and modified
// as a unified diff for path.
func GeneratePatch(path, original, modified string) (string, error) {
	edits := lineEdits(original, modified)
	if len(edits) == 0 {
		return "", nil
	}

	baseLines := splitLines(original)
	var hunks []*diff.Hunk
	delta := 0

	for _, e := range edits {
		var body strings.Builder
		for _, l := range baseLines[e.baseStart:e.baseEnd] {
			body.WriteString("-")
			body.WriteString(strings.TrimSuffix(l, "\n"))
			body.WriteString("\n")
		}
		for _, l := range e.lines {
			body.WriteString("+")
			body.WriteString(strings.TrimSuffix(l, "\n"))
			body.WriteString("\n")
		}

		origLines := e.baseEnd - e.baseStart
		origStart := e.baseStart + 1
		if origLines == 0 {
			origStart = e.baseStart
		}
		newLines := len(e.lines)
		newStart := origStart + delta
		if origLines > 0 && newLines == 0 {
			newStart = e.baseStart + delta
		}

		hunks = append(hunks, &diff.Hunk{
			OrigStartLine: int32(origStart),
			OrigLines:     int32(origLines),
			NewStartLine:  int32(newStart),
			NewLines:      int32(newLines),
			Body:          []byte(body.String()),
		})
		delta += newLines - origLines
	}

	out, err := diff.PrintFileDiff(&diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks:    hunks,
	})
	if err != nil {
		return "", fmt.Errorf("print unified diff: %w", err)
	}
	return string(out), nil
}
