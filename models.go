package main

import (
	"fmt"
	"sort"
	"time"
)

// PullRequestMetadata is the minimal pull request metadata used by the TUI
// header and the export commands.
type PullRequestMetadata struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	Author  string `json:"author,omitempty"`
}

// ReviewComment is a pull request review comment attached to a specific line
// in the diff. Identity is the ID; all other fields may be absent.
type ReviewComment struct {
	ID           uint64 `json:"id"`
	Body         string `json:"body,omitempty"`
	Author       string `json:"author,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	LineNumber   int    `json:"line_number,omitempty"`
	OriginalLine int    `json:"original_line,omitempty"`
	DiffHunk     string `json:"diff_hunk,omitempty"`
	CommitSHA    string `json:"commit_sha,omitempty"`
	InReplyToID  uint64 `json:"in_reply_to_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// RateLimit is a snapshot of the remote rate-limit headers from the most
// recent listing call.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// CommentPage is one page of review comments plus the rate-limit snapshot
// observed while fetching it.
type CommentPage struct {
	Comments  []ReviewComment
	RateLimit RateLimit
}

// SortCommentsForExport sorts comments in stable export order: file path
// ascending with absent paths last, then line number ascending with absent
// lines last, then ID ascending. Sorting is idempotent.
func SortCommentsForExport(comments []ReviewComment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return compareComments(comments[i], comments[j]) < 0
	})
}

func compareComments(a, b ReviewComment) int {
	if c := compareOptionalString(a.FilePath, b.FilePath); c != 0 {
		return c
	}
	if c := compareOptionalInt(a.LineNumber, b.LineNumber); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// compareOptionalString orders non-empty values alphabetically and sorts
// empty (absent) values last.
func compareOptionalString(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareOptionalInt orders positive values ascending and sorts zero
// (absent) values last.
func compareOptionalInt(a, b int) int {
	switch {
	case a == 0 && b == 0:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CommitSnapshot captures one commit, optionally with the content of a single
// file at that commit. Created by the local repository adapter; immutable.
type CommitSnapshot struct {
	SHA         string
	Message     string
	AuthorName  string
	Timestamp   time.Time
	FilePath    string
	FileContent string
	HasFile     bool
}

// ShortSHA returns the first seven characters of the commit SHA.
func (s CommitSnapshot) ShortSHA() string {
	if len(s.SHA) < 7 {
		return s.SHA
	}
	return s.SHA[:7]
}

// LineMappingStatus classifies where a commented-on line ended up between two
// commits of the same file.
type LineMappingStatus int

const (
	// LineExact means the line is at the same position in both commits.
	LineExact LineMappingStatus = iota
	// LineMoved means the line exists at a different position.
	LineMoved
	// LineDeleted means the line was removed.
	LineDeleted
	// LineNotFound means the line could not be located.
	LineNotFound
)

// LineMapping is the result of verifying a line position between two commits.
type LineMapping struct {
	Status       LineMappingStatus
	OriginalLine int
	CurrentLine  int
	Offset       int
}

// ExactMapping returns a mapping for a line that did not move.
func ExactMapping(line int) LineMapping {
	return LineMapping{Status: LineExact, OriginalLine: line, CurrentLine: line}
}

// MovedMapping returns a mapping for a line that moved to a new position.
func MovedMapping(original, current int) LineMapping {
	return LineMapping{
		Status:       LineMoved,
		OriginalLine: original,
		CurrentLine:  current,
		Offset:       current - original,
	}
}

// DeletedMapping returns a mapping for a line that was removed.
func DeletedMapping(line int) LineMapping {
	return LineMapping{Status: LineDeleted, OriginalLine: line}
}

// NotFoundMapping returns a mapping for a line that could not be located.
func NotFoundMapping(line int) LineMapping {
	return LineMapping{Status: LineNotFound, OriginalLine: line}
}

// String renders the mapping for display, including the signed offset for
// moved lines.
func (m LineMapping) String() string {
	switch m.Status {
	case LineExact:
		return fmt.Sprintf("line %d: exact", m.OriginalLine)
	case LineMoved:
		sign := "+"
		if m.Offset < 0 {
			sign = ""
		}
		return fmt.Sprintf("line %d: moved to %d (%s%d)", m.OriginalLine, m.CurrentLine, sign, m.Offset)
	case LineDeleted:
		return fmt.Sprintf("line %d: deleted", m.OriginalLine)
	default:
		return fmt.Sprintf("line %d: not found", m.OriginalLine)
	}
}
