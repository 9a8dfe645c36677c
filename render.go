package main

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	statusStyle   = lipgloss.NewStyle().Faint(true)
)

// DiffHunk is one raw hunk attached to a review comment.
type DiffHunk struct {
	FilePath string
	Line     int
	Text     string
}

// renderFrame draws the active view and normalises it to the viewport.
func (a *ReviewApp) renderFrame() string {
	if a.showHelp {
		return normaliseViewport(a.renderHelpOverlay(), a.width, a.height)
	}
	if a.resumePrompt != nil {
		return normaliseViewport(a.renderResumePrompt(), a.width, a.height)
	}

	switch a.viewMode {
	case ViewDiffContext:
		return normaliseViewport(a.renderDiffContextView(), a.width, a.height)
	case ViewTimeTravel:
		return normaliseViewport(a.renderTimeTravelView(), a.width, a.height)
	default:
		return normaliseViewport(a.renderListView(), a.width, a.height)
	}
}

// renderListView is the main frame: header, filter bar, list, detail pane,
// optional reply draft, status bar.
func (a *ReviewApp) renderListView() string {
	var sb strings.Builder

	sb.WriteString(a.renderHeader())
	sb.WriteString(a.renderFilterBar())
	sb.WriteByte('\n')

	listHeight := a.visibleListHeight()
	end := a.scrollOffset + listHeight
	if end > len(a.filteredIndices) {
		end = len(a.filteredIndices)
	}
	for pos := a.scrollOffset; pos < end; pos++ {
		comment := a.comments[a.filteredIndices[pos]]
		row := a.renderListRow(comment)
		if pos == a.cursor {
			row = selectedStyle.Render(row)
		}
		sb.WriteString(row)
		sb.WriteByte('\n')
	}
	for filled := end - a.scrollOffset; filled < listHeight; filled++ {
		sb.WriteByte('\n')
	}

	sb.WriteString(a.renderDetailPane())
	if a.replyDraft != nil {
		sb.WriteString(a.renderReplyDraft())
	}
	sb.WriteString(a.renderStatusBar())

	return sb.String()
}

// visibleListHeight is the number of list rows in the current layout.
func (a *ReviewApp) visibleListHeight() int {
	// header + filter bar + separator above, detail pane + status bar below.
	reserved := 3 + a.detailPaneHeight() + 2
	if a.replyDraft != nil {
		reserved += a.replyPaneHeight()
	}
	height := a.height - reserved
	if height < 1 {
		height = 1
	}
	return height
}

func (a *ReviewApp) detailPaneHeight() int {
	h := a.height / 3
	if h < 4 {
		h = 4
	}
	return h
}

func (a *ReviewApp) replyPaneHeight() int {
	if a.replyPreview != nil {
		return 8
	}
	return 3
}

func (a *ReviewApp) renderHeader() string {
	title := a.metadata.Title
	if title == "" {
		title = "(untitled)"
	}
	line := fmt.Sprintf("%s/%s #%d - %s", a.locator.Owner, a.locator.Repo, a.locator.Number, title)
	if a.loading {
		line += "  [loading...]"
	}
	return headerStyle.Render(line) + "\n"
}

func (a *ReviewApp) renderFilterBar() string {
	var label string
	switch a.filter.Kind {
	case FilterUnresolved:
		label = "unresolved"
	case FilterByFile:
		label = "file: " + a.filter.File
	case FilterByReviewer:
		label = "reviewer: " + a.filter.Reviewer
	case FilterByCommitRange:
		label = fmt.Sprintf("commits: %d", len(a.filter.CommitSHAs))
	default:
		label = "all"
	}
	bar := fmt.Sprintf("filter: %s  (%d/%d comments)", label, a.filteredCount(), len(a.comments))
	return dimStyle.Render(bar) + "\n"
}

func (a *ReviewApp) renderListRow(comment ReviewComment) string {
	location := comment.FilePath
	if location == "" {
		location = "(no file)"
	}
	if comment.LineNumber > 0 {
		location = fmt.Sprintf("%s:%d", location, comment.LineNumber)
	}

	author := comment.Author
	if author == "" {
		author = "unknown"
	}

	body := firstLine(comment.Body)
	reply := ""
	if comment.InReplyToID != 0 {
		reply = "  ↳"
	}
	return fmt.Sprintf("%s %-18s %-30s %s", reply, "@"+author, location, body)
}

func (a *ReviewApp) renderDetailPane() string {
	var sb strings.Builder
	sb.WriteString(dimStyle.Render(strings.Repeat("─", max(1, a.width-1))))
	sb.WriteByte('\n')

	comment := a.selectedComment()
	if comment == nil {
		sb.WriteString("No comments match the active filter.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Comment %d by @%s", comment.ID, comment.Author)
	if comment.CreatedAt != "" {
		fmt.Fprintf(&sb, "  (%s)", comment.CreatedAt)
	}
	sb.WriteByte('\n')

	remaining := a.detailPaneHeight() - 2
	for _, line := range strings.Split(comment.Body, "\n") {
		if remaining <= 0 {
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
		remaining--
	}
	return sb.String()
}

func (a *ReviewApp) renderReplyDraft() string {
	var sb strings.Builder
	draft := a.replyDraft

	sb.WriteString(dimStyle.Render(strings.Repeat("─", max(1, a.width-1))))
	sb.WriteByte('\n')

	label := "reply"
	if draft.ReadyToSend {
		label = "reply (ready to send)"
	}
	if draft.OriginLabel != "" {
		label += " [" + draft.OriginLabel + "]"
	}
	fmt.Fprintf(&sb, "%s (%d/%d): %s\n", label, runeLength(draft.Text), draft.MaxLength, draft.Text)

	if a.replyPreview != nil {
		fmt.Fprintf(&sb, "AI %s preview (Y apply / N discard):\n", a.replyPreview.Mode)
		for i, line := range a.replyPreview.Preview.Lines {
			if i >= 4 {
				break
			}
			fmt.Fprintf(&sb, "%3d: %s || %s\n", i+1, line.Original, line.Candidate)
		}
	}
	return sb.String()
}

func (a *ReviewApp) renderStatusBar() string {
	if a.errMsg != "" {
		return errorStyle.Render(firstLine(a.errMsg))
	}

	parts := []string{"j/k move", "f filter", "c context", "t time-travel", "a reply", "x agent", "? help", "q quit"}
	status := strings.Join(parts, "  ")
	if a.agentStatus != "" {
		status = a.agentStatus
	}
	return statusStyle.Render(status)
}

// hunksForSelectedFile collects the diff hunks of every comment on the
// selected comment's file, in export order, for the diff-context view.
func (a *ReviewApp) hunksForSelectedFile() []DiffHunk {
	comment := a.selectedComment()
	if comment == nil || comment.FilePath == "" {
		return nil
	}

	related := make([]ReviewComment, 0)
	for _, c := range a.comments {
		if c.FilePath == comment.FilePath && c.DiffHunk != "" {
			related = append(related, c)
		}
	}
	SortCommentsForExport(related)

	hunks := make([]DiffHunk, 0, len(related))
	for _, c := range related {
		hunks = append(hunks, DiffHunk{FilePath: c.FilePath, Line: c.LineNumber, Text: c.DiffHunk})
	}
	return hunks
}

// enterDiffContext switches to the full-screen hunk view anchored on the
// selected comment's hunk.
func (a *ReviewApp) enterDiffContext() {
	comment := a.selectedComment()
	if comment == nil {
		a.errMsg = "No comment selected"
		return
	}
	if comment.DiffHunk == "" {
		a.errMsg = "Selected comment has no diff context"
		return
	}

	a.hunkIndex = 0
	for i, hunk := range a.hunksForSelectedFile() {
		if hunk.Line == comment.LineNumber && hunk.Text == comment.DiffHunk {
			a.hunkIndex = i
			break
		}
	}
	a.viewMode = ViewDiffContext
}

// moveHunk steps between hunks in the diff-context view.
func (a *ReviewApp) moveHunk(delta int) {
	if a.viewMode != ViewDiffContext {
		return
	}
	hunks := a.hunksForSelectedFile()
	if len(hunks) == 0 {
		return
	}
	next := a.hunkIndex + delta
	if next < 0 {
		next = 0
	}
	if next >= len(hunks) {
		next = len(hunks) - 1
	}
	a.hunkIndex = next
}

func (a *ReviewApp) renderDiffContextView() string {
	var sb strings.Builder
	hunks := a.hunksForSelectedFile()
	if len(hunks) == 0 {
		sb.WriteString("No diff context available.\n")
		sb.WriteString(dimStyle.Render("Esc back"))
		return sb.String()
	}
	if a.hunkIndex >= len(hunks) {
		a.hunkIndex = len(hunks) - 1
	}

	hunk := hunks[a.hunkIndex]
	header := fmt.Sprintf("%s  hunk %d/%d", hunk.FilePath, a.hunkIndex+1, len(hunks))
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n\n")
	sb.WriteString(renderDiffHunkText(hunk.Text))
	sb.WriteByte('\n')
	sb.WriteString(dimStyle.Render("[ previous hunk  ] next hunk  Esc back"))
	return sb.String()
}

// renderDiffHunkText colours added and removed lines.
func renderDiffHunkText(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			sb.WriteString(addedStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			sb.WriteString(removedStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			sb.WriteString(dimStyle.Render(line))
		default:
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (a *ReviewApp) renderTimeTravelView() string {
	state := a.timeTravel
	if state == nil {
		return "Time travel is not active.\n"
	}

	var sb strings.Builder
	if state.ErrMsg != "" {
		sb.WriteString(errorStyle.Render("Time travel failed:"))
		sb.WriteByte('\n')
		sb.WriteString(state.ErrMsg)
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("Esc back"))
		return sb.String()
	}
	if state.Loading {
		sb.WriteString("Loading commit...\n")
		return sb.String()
	}

	snapshot := state.Snapshot
	header := fmt.Sprintf("%s @ %s  (%d/%d)", state.FilePath, snapshot.ShortSHA(), state.Index+1, len(state.History))
	sb.WriteString(headerStyle.Render(header))
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "%s  %s  %s\n", snapshot.AuthorName, snapshot.Timestamp.Format("2006-01-02 15:04"), snapshot.Message)
	if state.Mapping != nil {
		sb.WriteString(dimStyle.Render(state.Mapping.String()))
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	if snapshot.HasFile {
		sb.WriteString(highlightSource(state.FilePath, snapshot.FileContent, state.currentLineForDisplay(), a.height-8))
	}
	sb.WriteString(dimStyle.Render("h older  l newer  Esc back"))
	return sb.String()
}

// currentLineForDisplay is the line to mark in the snapshot: the mapped
// position when the mapping moved, else the original line.
func (s *TimeTravelState) currentLineForDisplay() int {
	if s.Mapping != nil && s.Mapping.Status == LineMoved {
		return s.Mapping.CurrentLine
	}
	return s.OriginalLine
}

// highlightSource renders a window of the file centred on markLine, with
// syntax highlighting when the language is recognised.
func highlightSource(filePath, content string, markLine, maxLines int) string {
	if maxLines < 3 {
		maxLines = 3
	}

	highlighted := content
	if lexer := lexers.Match(filePath); lexer != nil {
		var hb strings.Builder
		if err := quick.Highlight(&hb, content, lexer.Config().Name, "terminal256", "monokai"); err == nil {
			highlighted = hb.String()
		}
	}

	lines := strings.Split(strings.TrimRight(highlighted, "\n"), "\n")
	start := 0
	if markLine > 0 {
		start = markLine - maxLines/2 - 1
	}
	if start < 0 {
		start = 0
	}
	end := start + maxLines
	if end > len(lines) {
		end = len(lines)
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		marker := "  "
		if i+1 == markLine {
			marker = "> "
		}
		fmt.Fprintf(&sb, "%s%4d %s\n", marker, i+1, lines[i])
	}
	return sb.String()
}

func (a *ReviewApp) renderResumePrompt() string {
	session := a.resumePrompt
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Interrupted agent session found"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Pull request: %s/%s #%d\n", session.Owner, session.Repo, session.Number)
	fmt.Fprintf(&sb, "Started:      %s\n", session.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Transcript:   %s\n", session.TranscriptPath)
	if session.ThreadID != "" {
		fmt.Fprintf(&sb, "Thread:       %s\n", session.ThreadID)
	}
	sb.WriteString("\nResume this session? (y/n)\n")
	return sb.String()
}

func (a *ReviewApp) renderHelpOverlay() string {
	return strings.Join([]string{
		headerStyle.Render("reviewdeck keys"),
		"",
		"  j/k, arrows     move cursor",
		"  g/G, Home/End   first / last comment",
		"  PgUp/PgDn       page",
		"  f               cycle filter (all / unresolved)",
		"  Esc             clear filter / back / cancel",
		"  r               refresh comments",
		"  c               diff context view ([ ] to switch hunks)",
		"  t               time travel (h older, l newer)",
		"  a               draft a reply (1-9 templates, E/W AI rewrite,",
		"                  Y apply, N discard, Enter ready, Esc cancel)",
		"  x               run the coding agent",
		"  ?               toggle this help",
		"  q               quit",
		"",
		"press any key to close",
	}, "\n")
}
