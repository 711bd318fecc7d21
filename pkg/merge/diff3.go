package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Conflict is a region where current and proposed made incompatible changes
// to the same base lines. StartLine and EndLine span the region in the
// merged output, which retains Current's content.
type Conflict struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Base      string `json:"base"`
	Current   string `json:"current"`
	Proposed  string `json:"proposed"`
}

// MergeResult is the outcome of a three way merge. A non-empty Conflicts
// list blocks commit.
type MergeResult struct {
	MergedText string     `json:"mergedText"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
}

// edit replaces base lines [baseStart, baseEnd) with lines. Lines keep
// their trailing newline so concatenation reproduces the text exactly.
type edit struct {
	baseStart int
	baseEnd   int
	lines     []string
}

// Diff3Merge aligns current and proposed against their common ancestor.
// Regions changed on only one side, or changed identically on both, merge
// automatically. Regions changed differently on both sides become
// Conflicts, and the merged text keeps current's lines there so an
// unresolved conflict never overwrites edits that were not approved.
func Diff3Merge(base, current, proposed string) MergeResult {
	if current == proposed {
		return MergeResult{MergedText: current}
	}

	editsCur := lineEdits(base, current)
	editsProp := lineEdits(base, proposed)
	baseLines := splitLines(base)

	var out []string
	var conflicts []Conflict
	pos := 0
	ic, ip := 0, 0

	for ic < len(editsCur) || ip < len(editsProp) {
		start := len(baseLines)
		if ic < len(editsCur) && editsCur[ic].baseStart < start {
			start = editsCur[ic].baseStart
		}
		if ip < len(editsProp) && editsProp[ip].baseStart < start {
			start = editsProp[ip].baseStart
		}

		out = append(out, baseLines[pos:start]...)

		// Grow the cluster until neither side has an edit touching it.
		end := start
		var clusterCur, clusterProp []edit
		for {
			grew := false
			if ic < len(editsCur) && joinsCluster(editsCur[ic], start, end) {
				clusterCur = append(clusterCur, editsCur[ic])
				if editsCur[ic].baseEnd > end {
					end = editsCur[ic].baseEnd
				}
				ic++
				grew = true
			}
			if ip < len(editsProp) && joinsCluster(editsProp[ip], start, end) {
				clusterProp = append(clusterProp, editsProp[ip])
				if editsProp[ip].baseEnd > end {
					end = editsProp[ip].baseEnd
				}
				ip++
				grew = true
			}
			if !grew {
				break
			}
		}

		curLines := applyClusterEdits(baseLines, start, end, clusterCur)
		propLines := applyClusterEdits(baseLines, start, end, clusterProp)

		switch {
		case len(clusterCur) == 0:
			out = append(out, propLines...)
		case len(clusterProp) == 0 || linesEqual(curLines, propLines):
			out = append(out, curLines...)
		default:
			conflicts = append(conflicts, Conflict{
				StartLine: len(out),
				EndLine:   len(out) + len(curLines),
				Base:      strings.Join(baseLines[start:end], ""),
				Current:   strings.Join(curLines, ""),
				Proposed:  strings.Join(propLines, ""),
			})
			out = append(out, curLines...)
		}

		pos = end
	}

	out = append(out, baseLines[pos:]...)
	return MergeResult{MergedText: strings.Join(out, ""), Conflicts: conflicts}
}

// joinsCluster reports whether e touches the base span [start, end).
// Edits arrive in ascending order, so e.baseStart >= start. An edit whose
// start falls strictly inside the span joins, as does one anchored exactly
// at the cluster's origin (covers inserts at the same point). An edit
// starting exactly at end stays out, so adjacent changes merge cleanly.
func joinsCluster(e edit, start, end int) bool {
	return e.baseStart < end || e.baseStart == start
}

// applyClusterEdits materializes one side's view of base lines [start, end).
func applyClusterEdits(baseLines []string, start, end int, edits []edit) []string {
	if len(edits) == 0 {
		return baseLines[start:end]
	}
	var out []string
	pos := start
	for _, e := range edits {
		out = append(out, baseLines[pos:e.baseStart]...)
		out = append(out, e.lines...)
		pos = e.baseEnd
	}
	out = append(out, baseLines[pos:end]...)
	return out
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lineEdits computes the line level edits that transform base into side,
// in ascending base order.
func lineEdits(base, side string) []edit {
	if base == side {
		return nil
	}

	dmp := diffmatchpatch.New()
	baseChars, sideChars, lineArray := dmp.DiffLinesToChars(base, side)
	diffs := dmp.DiffMain(baseChars, sideChars, false)

	var out []edit
	basePos := 0
	cur := edit{baseStart: -1}
	flush := func() {
		if cur.baseStart >= 0 {
			out = append(out, cur)
			cur = edit{baseStart: -1}
		}
	}

	for _, d := range diffs {
		runes := []rune(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			basePos += len(runes)
		case diffmatchpatch.DiffDelete:
			if cur.baseStart < 0 {
				cur.baseStart = basePos
				cur.baseEnd = basePos
			}
			cur.baseEnd += len(runes)
			basePos += len(runes)
		case diffmatchpatch.DiffInsert:
			if cur.baseStart < 0 {
				cur.baseStart = basePos
				cur.baseEnd = basePos
			}
			for _, r := range runes {
				cur.lines = append(cur.lines, lineArray[r])
			}
		}
	}
	flush()
	return out
}

// splitLines splits text into lines that keep their trailing newline. The
// final segment is included only when non-empty, matching how the diff
// library segments lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
