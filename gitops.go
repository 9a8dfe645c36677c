package main

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitOperations is the capability surface the time-travel feature needs from
// a local repository. Tests substitute in-memory stubs.
type GitOperations interface {
	// Snapshot reads one commit, including the content of filePath when it
	// is non-empty.
	Snapshot(sha string, filePath string) (CommitSnapshot, error)
	// FileAtCommit returns the UTF-8 content of a file at a commit.
	FileAtCommit(sha, filePath string) (string, error)
	// ParentCommits returns up to limit ancestor SHAs, newest first,
	// including the input commit.
	ParentCommits(sha string, limit int) ([]string, error)
	// CommitExists reports whether sha resolves to a commit. Short SHAs and
	// named refs are accepted.
	CommitExists(sha string) bool
	// VerifyLineMapping classifies where line of filePath at oldSHA ended up
	// at newSHA.
	VerifyLineMapping(oldSHA, newSHA, filePath string, line int) (LineMapping, error)
}

// GoGitOperations implements GitOperations over a go-git repository handle.
type GoGitOperations struct {
	repo *git.Repository
}

// OpenGitOperations opens the repository at repoPath.
func OpenGitOperations(repoPath string) (*GoGitOperations, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &GitOpError{Kind: GitOpRepositoryNotAvailable, Message: err.Error()}
	}
	return &GoGitOperations{repo: repo}, nil
}

// resolveCommit resolves a full SHA, short SHA, or named ref to a commit.
func (g *GoGitOperations) resolveCommit(sha string) (*object.Commit, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(sha))
	if err != nil {
		return nil, &GitOpError{Kind: GitOpCommitNotFound, SHA: sha}
	}
	commit, err := g.repo.CommitObject(*hash)
	if err != nil {
		return nil, &GitOpError{Kind: GitOpCommitNotFound, SHA: sha}
	}
	return commit, nil
}

// Snapshot reads the commit metadata and, when filePath is non-empty, the
// file's content at that commit.
func (g *GoGitOperations) Snapshot(sha string, filePath string) (CommitSnapshot, error) {
	commit, err := g.resolveCommit(sha)
	if err != nil {
		return CommitSnapshot{}, err
	}

	snapshot := CommitSnapshot{
		SHA:        commit.Hash.String(),
		Message:    firstLine(commit.Message),
		AuthorName: commit.Author.Name,
		Timestamp:  commit.Author.When.UTC(),
	}

	if filePath != "" {
		content, err := fileContentAt(commit, filePath)
		if err != nil {
			return CommitSnapshot{}, err
		}
		snapshot.FilePath = filePath
		snapshot.FileContent = content
		snapshot.HasFile = true
	}

	return snapshot, nil
}

// FileAtCommit returns the content of filePath at sha, failing when the
// content is not valid UTF-8.
func (g *GoGitOperations) FileAtCommit(sha, filePath string) (string, error) {
	commit, err := g.resolveCommit(sha)
	if err != nil {
		return "", err
	}
	return fileContentAt(commit, filePath)
}

// ParentCommits walks the history from sha, newest first, up to limit
// entries including sha itself.
func (g *GoGitOperations) ParentCommits(sha string, limit int) ([]string, error) {
	commit, err := g.resolveCommit(sha)
	if err != nil {
		return nil, err
	}

	iter, err := g.repo.Log(&git.LogOptions{From: commit.Hash, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, &GitOpError{Kind: GitOpCommitAccessFailed, SHA: sha, Message: err.Error()}
	}
	defer iter.Close()

	var shas []string
	for len(shas) < limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		shas = append(shas, c.Hash.String())
	}
	return shas, nil
}

// CommitExists reports whether sha resolves to a commit object.
func (g *GoGitOperations) CommitExists(sha string) bool {
	_, err := g.resolveCommit(sha)
	return err == nil
}

// VerifyLineMapping classifies a line position between two commits of the
// same file as exact, moved (with signed offset), or deleted.
func (g *GoGitOperations) VerifyLineMapping(oldSHA, newSHA, filePath string, line int) (LineMapping, error) {
	if oldSHA == newSHA {
		return ExactMapping(line), nil
	}

	oldCommit, err := g.resolveCommit(oldSHA)
	if err != nil {
		return LineMapping{}, err
	}
	newCommit, err := g.resolveCommit(newSHA)
	if err != nil {
		return LineMapping{}, err
	}

	// File removed entirely in the new tree.
	if _, err := newCommit.File(filePath); errors.Is(err, object.ErrFileNotFound) {
		return DeletedMapping(line), nil
	}

	hunks, err := fileDiffHunks(oldCommit, newCommit, filePath)
	if err != nil {
		return LineMapping{}, err
	}
	if len(hunks) == 0 {
		return ExactMapping(line), nil
	}

	offset, deleted := lineOffsetFromHunks(hunks, line)
	if deleted {
		return DeletedMapping(line), nil
	}
	if offset == 0 {
		return ExactMapping(line), nil
	}
	return MovedMapping(line, line+offset), nil
}

// hunkRange describes one diff hunk in old-file coordinates.
type hunkRange struct {
	start    int // starting line in the old file, 1-indexed
	oldLines int
	newLines int
}

func (h hunkRange) endLine() int { return h.start + h.oldLines }

func (h hunkRange) containsLine(line int) bool {
	return line >= h.start && line < h.endLine()
}

// isLineDeleted reports whether line falls in the portion of a shrinking
// hunk that has no counterpart in the new file.
func (h hunkRange) isLineDeleted(line int) bool {
	if h.oldLines <= h.newLines {
		return false
	}
	return line >= h.start+h.newLines
}

// offset returns new_lines - old_lines. Counts outside the signed 32-bit
// range collapse to zero; diff hunks cannot contain billions of lines.
func (h hunkRange) offset() int {
	if h.oldLines > math.MaxInt32 || h.newLines > math.MaxInt32 {
		return 0
	}
	return h.newLines - h.oldLines
}

// lineOffsetFromHunks walks hunks in order, accumulating the offset from
// hunks fully above the target line and detecting in-hunk deletion.
func lineOffsetFromHunks(hunks []hunkRange, target int) (offset int, deleted bool) {
	for _, h := range hunks {
		switch {
		case h.containsLine(target):
			return offset, h.isLineDeleted(target)
		case target >= h.endLine():
			offset += h.offset()
		default:
			// Hunk is entirely below the target line; later hunks are too.
			return offset, false
		}
	}
	return offset, false
}

// fileDiffHunks diffs filePath between two commits and reconstructs hunk
// ranges from the patch chunks. An empty result means the file is unchanged.
func fileDiffHunks(oldCommit, newCommit *object.Commit, filePath string) ([]hunkRange, error) {
	oldTree, err := oldCommit.Tree()
	if err != nil {
		return nil, &GitOpError{Kind: GitOpCommitAccessFailed, SHA: oldCommit.Hash.String(), Message: err.Error()}
	}
	newTree, err := newCommit.Tree()
	if err != nil {
		return nil, &GitOpError{Kind: GitOpCommitAccessFailed, SHA: newCommit.Hash.String(), Message: err.Error()}
	}

	changes, err := object.DiffTree(oldTree, newTree)
	if err != nil {
		return nil, &GitOpError{Kind: GitOpDiffComputationFailed, Message: err.Error()}
	}

	for _, change := range changes {
		if change.From.Name != filePath && change.To.Name != filePath {
			continue
		}
		patch, err := change.Patch()
		if err != nil {
			return nil, &GitOpError{Kind: GitOpDiffComputationFailed, Message: err.Error()}
		}
		for _, filePatch := range patch.FilePatches() {
			return hunksFromChunks(filePatch.Chunks()), nil
		}
	}
	return nil, nil
}

// hunksFromChunks converts a flat chunk stream (equal/add/delete runs) into
// hunk ranges in old-file coordinates. Consecutive non-equal chunks form one
// hunk.
func hunksFromChunks(chunks []diff.Chunk) []hunkRange {
	var hunks []hunkRange
	oldLine := 1

	var current *hunkRange
	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for _, chunk := range chunks {
		lines := countChunkLines(chunk.Content())
		switch chunk.Type() {
		case diff.Equal:
			flush()
			oldLine += lines
		case diff.Delete:
			if current == nil {
				current = &hunkRange{start: oldLine}
			}
			current.oldLines += lines
			oldLine += lines
		case diff.Add:
			if current == nil {
				current = &hunkRange{start: oldLine}
			}
			current.newLines += lines
		}
	}
	flush()
	return hunks
}

// countChunkLines counts the lines in a chunk, treating a trailing newline
// as a terminator rather than an extra line.
func countChunkLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// fileContentAt reads filePath from the commit tree, enforcing UTF-8.
func fileContentAt(commit *object.Commit, filePath string) (string, error) {
	file, err := commit.File(filePath)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", &GitOpError{Kind: GitOpFileNotFound, Path: filePath, SHA: commit.Hash.String()}
	}
	if err != nil {
		return "", &GitOpError{Kind: GitOpCommitAccessFailed, SHA: commit.Hash.String(), Message: err.Error()}
	}

	content, err := file.Contents()
	if err != nil {
		return "", &GitOpError{Kind: GitOpCommitAccessFailed, SHA: commit.Hash.String(), Message: err.Error()}
	}
	if !utf8.ValidString(content) {
		return "", &GitOpError{
			Kind:    GitOpCommitAccessFailed,
			SHA:     commit.Hash.String(),
			Message: "file content is not valid UTF-8",
		}
	}
	return content, nil
}

// firstLine returns the first line of a commit message.
func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx != -1 {
		return message[:idx]
	}
	return message
}
