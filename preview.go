package main

import "strings"

// SideBySideLine is one row in a side-by-side rewrite preview.
type SideBySideLine struct {
	Original  string
	Candidate string
}

// SideBySidePreview is the preview model consumed by the CLI and TUI
// renderers. It is recomputed from the current draft plus the candidate;
// it never references the draft it came from.
type SideBySidePreview struct {
	Lines      []SideBySideLine
	HasChanges bool
}

// BuildSideBySidePreview builds a line-aligned preview of the original draft
// next to the rewritten candidate, padding the shorter side with empty rows.
func BuildSideBySidePreview(original, candidate string) SideBySidePreview {
	originalLines := splitPreservingEmpty(original)
	candidateLines := splitPreservingEmpty(candidate)

	rows := len(originalLines)
	if len(candidateLines) > rows {
		rows = len(candidateLines)
	}

	lines := make([]SideBySideLine, 0, rows)
	for i := 0; i < rows; i++ {
		var row SideBySideLine
		if i < len(originalLines) {
			row.Original = originalLines[i]
		}
		if i < len(candidateLines) {
			row.Candidate = candidateLines[i]
		}
		lines = append(lines, row)
	}

	return SideBySidePreview{Lines: lines, HasChanges: original != candidate}
}

// splitPreservingEmpty splits on newlines, yielding a single empty line for
// empty input so the preview always has at least one row.
func splitPreservingEmpty(text string) []string {
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}
