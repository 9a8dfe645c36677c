package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// fixtureRepo is a throwaway repository for adapter tests.
type fixtureRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	// clock advances per commit so history ordering is deterministic.
	clock time.Time
}

func newFixtureRepo(t *testing.T) *fixtureRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return &fixtureRepo{
		t:     t,
		dir:   dir,
		repo:  repo,
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// commitFile writes content to name and commits it, returning the SHA.
func (f *fixtureRepo) commitFile(name, content, message string) string {
	f.t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o600); err != nil {
		f.t.Fatalf("write failed: %v", err)
	}
	return f.commitAll(message, name)
}

// removeFile deletes name and commits the removal.
func (f *fixtureRepo) removeFile(name, message string) string {
	f.t.Helper()
	if err := os.Remove(filepath.Join(f.dir, name)); err != nil {
		f.t.Fatalf("remove failed: %v", err)
	}
	return f.commitAll(message, name)
}

func (f *fixtureRepo) commitAll(message, name string) string {
	f.t.Helper()
	wt, err := f.repo.Worktree()
	if err != nil {
		f.t.Fatalf("worktree failed: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		f.t.Fatalf("add failed: %v", err)
	}
	f.clock = f.clock.Add(time.Minute)
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "Tester", Email: "tester@example.com", When: f.clock},
	})
	if err != nil {
		f.t.Fatalf("commit failed: %v", err)
	}
	return hash.String()
}

func (f *fixtureRepo) ops() *GoGitOperations {
	f.t.Helper()
	ops, err := OpenGitOperations(f.dir)
	if err != nil {
		f.t.Fatalf("open failed: %v", err)
	}
	return ops
}

func TestSnapshot_ReadsCommitAndFile(t *testing.T) {
	f := newFixtureRepo(t)
	sha := f.commitFile("main.go", "package main\n", "initial commit\n\nbody text")
	ops := f.ops()

	snapshot, err := ops.Snapshot(sha, "main.go")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snapshot.SHA != sha {
		t.Errorf("unexpected sha %s", snapshot.SHA)
	}
	if snapshot.Message != "initial commit" {
		t.Errorf("message should be the first line, got %q", snapshot.Message)
	}
	if snapshot.AuthorName != "Tester" {
		t.Errorf("unexpected author %q", snapshot.AuthorName)
	}
	if !snapshot.HasFile || snapshot.FileContent != "package main\n" {
		t.Errorf("unexpected file content: %+v", snapshot)
	}
}

func TestSnapshot_WithoutFile(t *testing.T) {
	f := newFixtureRepo(t)
	sha := f.commitFile("main.go", "package main\n", "initial")
	ops := f.ops()

	snapshot, err := ops.Snapshot(sha, "")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snapshot.HasFile {
		t.Error("snapshot without a path should carry no file")
	}
}

func TestFileAtCommit_Missing(t *testing.T) {
	f := newFixtureRepo(t)
	sha := f.commitFile("main.go", "package main\n", "initial")
	ops := f.ops()

	_, err := ops.FileAtCommit(sha, "absent.go")
	var gitErr *GitOpError
	if !errors.As(err, &gitErr) || gitErr.Kind != GitOpFileNotFound {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestCommitExists(t *testing.T) {
	f := newFixtureRepo(t)
	sha := f.commitFile("main.go", "package main\n", "initial")
	ops := f.ops()

	if !ops.CommitExists(sha) {
		t.Error("full sha should exist")
	}
	if !ops.CommitExists(sha[:7]) {
		t.Error("short sha should resolve")
	}
	if !ops.CommitExists("HEAD") {
		t.Error("named ref should resolve")
	}
	if ops.CommitExists("0000000000000000000000000000000000000000") {
		t.Error("unknown sha should not exist")
	}
}

func TestParentCommits_NewestFirstIncludingInput(t *testing.T) {
	f := newFixtureRepo(t)
	first := f.commitFile("a.txt", "one\n", "first")
	second := f.commitFile("a.txt", "two\n", "second")
	third := f.commitFile("a.txt", "three\n", "third")
	ops := f.ops()

	history, err := ops.ParentCommits(third, 10)
	if err != nil {
		t.Fatalf("parent commits failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(history))
	}
	if history[0] != third || history[1] != second || history[2] != first {
		t.Errorf("unexpected order: %v", history)
	}

	limited, err := ops.ParentCommits(third, 2)
	if err != nil {
		t.Fatalf("limited history failed: %v", err)
	}
	if len(limited) != 2 || limited[0] != third {
		t.Errorf("limit should bound the walk: %v", limited)
	}
}

func TestVerifyLineMapping_SameSHA(t *testing.T) {
	f := newFixtureRepo(t)
	sha := f.commitFile("a.txt", "alpha\nbeta\n", "initial")
	ops := f.ops()

	mapping, err := ops.VerifyLineMapping(sha, sha, "a.txt", 17)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if mapping.Status != LineExact || mapping.OriginalLine != 17 {
		t.Errorf("same sha should be exact for any line, got %+v", mapping)
	}
}

func TestVerifyLineMapping_UnchangedFile(t *testing.T) {
	f := newFixtureRepo(t)
	old := f.commitFile("a.txt", "alpha\nbeta\n", "initial")
	updated := f.commitFile("other.txt", "unrelated\n", "touch other file")
	ops := f.ops()

	mapping, err := ops.VerifyLineMapping(old, updated, "a.txt", 2)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if mapping.Status != LineExact {
		t.Errorf("untouched file should map exactly, got %+v", mapping)
	}
}

// S3: an insertion strictly above the target line moves it down by the
// inserted count.
func TestVerifyLineMapping_InsertionAbove(t *testing.T) {
	f := newFixtureRepo(t)
	old := f.commitFile("a.txt", "alpha\nbeta\ngamma\n", "initial")
	updated := f.commitFile("a.txt", "inserted\nalpha\nbeta\ngamma\n", "insert line at top")
	ops := f.ops()

	mapping, err := ops.VerifyLineMapping(old, updated, "a.txt", 2)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if mapping.Status != LineMoved || mapping.OriginalLine != 2 || mapping.CurrentLine != 3 || mapping.Offset != 1 {
		t.Errorf("expected Moved(2->3,+1), got %+v", mapping)
	}
}

// S4: a deletion above moves the line up; a deletion including the line
// reports Deleted.
func TestVerifyLineMapping_DeletionAboveAndAt(t *testing.T) {
	f := newFixtureRepo(t)
	old := f.commitFile("a.txt", "drop\nkeep-one\nkeep-two\n", "initial")
	updated := f.commitFile("a.txt", "keep-one\nkeep-two\n", "drop first line")
	ops := f.ops()

	moved, err := ops.VerifyLineMapping(old, updated, "a.txt", 3)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if moved.Status != LineMoved || moved.CurrentLine != 2 || moved.Offset != -1 {
		t.Errorf("expected Moved(3->2,-1), got %+v", moved)
	}

	deleted, err := ops.VerifyLineMapping(old, updated, "a.txt", 1)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if deleted.Status != LineDeleted {
		t.Errorf("expected Deleted for the removed line, got %+v", deleted)
	}
}

func TestVerifyLineMapping_FileDeleted(t *testing.T) {
	f := newFixtureRepo(t)
	old := f.commitFile("a.txt", "alpha\n", "initial")
	updated := f.removeFile("a.txt", "remove file")
	ops := f.ops()

	mapping, err := ops.VerifyLineMapping(old, updated, "a.txt", 1)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if mapping.Status != LineDeleted {
		t.Errorf("expected Deleted for a removed file, got %+v", mapping)
	}
}

func TestVerifyLineMapping_UnknownCommit(t *testing.T) {
	f := newFixtureRepo(t)
	sha := f.commitFile("a.txt", "alpha\n", "initial")
	ops := f.ops()

	_, err := ops.VerifyLineMapping(sha, "0000000000000000000000000000000000000000", "a.txt", 1)
	var gitErr *GitOpError
	if !errors.As(err, &gitErr) || gitErr.Kind != GitOpCommitNotFound {
		t.Fatalf("expected CommitNotFound, got %v", err)
	}
}

func TestOpenGitOperations_NotARepo(t *testing.T) {
	_, err := OpenGitOperations(t.TempDir())
	var gitErr *GitOpError
	if !errors.As(err, &gitErr) || gitErr.Kind != GitOpRepositoryNotAvailable {
		t.Fatalf("expected RepositoryNotAvailable, got %v", err)
	}
}

// Unit tests for the hunk walk itself, independent of any repository.

func TestLineOffsetFromHunks_AccumulatesAboveTarget(t *testing.T) {
	hunks := []hunkRange{
		{start: 1, oldLines: 0, newLines: 2}, // insertion of 2 above
		{start: 10, oldLines: 3, newLines: 1},
	}

	offset, deleted := lineOffsetFromHunks(hunks, 5)
	if deleted || offset != 2 {
		t.Errorf("expected offset +2, got offset=%d deleted=%v", offset, deleted)
	}

	offset, deleted = lineOffsetFromHunks(hunks, 20)
	if deleted || offset != 0 {
		t.Errorf("an insertion and a deletion above should net to 0 here, got %d", offset)
	}
}

func TestLineOffsetFromHunks_DeletedInsideShrinkingHunk(t *testing.T) {
	hunks := []hunkRange{{start: 3, oldLines: 4, newLines: 1}}

	// Lines 4-6 fall past start+newLines and are gone.
	_, deleted := lineOffsetFromHunks(hunks, 5)
	if !deleted {
		t.Error("line inside the removed tail should be deleted")
	}

	// Line 3 survives as the single new line.
	_, deleted = lineOffsetFromHunks(hunks, 3)
	if deleted {
		t.Error("first line of the hunk should survive")
	}
}

func TestLineOffsetFromHunks_StopsBeforeLaterHunks(t *testing.T) {
	hunks := []hunkRange{
		{start: 100, oldLines: 1, newLines: 5},
	}
	offset, deleted := lineOffsetFromHunks(hunks, 10)
	if deleted || offset != 0 {
		t.Errorf("hunks below the target must not contribute, got %d", offset)
	}
}

func TestHunkRangeOffset_OverflowCollapsesToZero(t *testing.T) {
	h := hunkRange{start: 1, oldLines: 1 << 40, newLines: 1}
	if h.offset() != 0 {
		t.Errorf("counts beyond int32 should collapse to zero, got %d", h.offset())
	}
}

func TestCountChunkLines(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"one\n", 1},
		{"one\ntwo\n", 2},
		{"no trailing newline", 1},
		{"a\nb", 2},
	}
	for _, tc := range cases {
		if got := countChunkLines(tc.content); got != tc.want {
			t.Errorf("countChunkLines(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}
