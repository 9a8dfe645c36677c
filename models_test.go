package main

import (
	"testing"
)

func comment(id uint64, file string, line int) ReviewComment {
	return ReviewComment{ID: id, FilePath: file, LineNumber: line}
}

func idsOf(comments []ReviewComment) []uint64 {
	ids := make([]uint64, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	return ids
}

func assertOrder(t *testing.T, comments []ReviewComment, want []uint64) {
	t.Helper()
	SortCommentsForExport(comments)
	got := idsOf(comments)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}

func TestSortCommentsForExport_ByFileThenLineThenID(t *testing.T) {
	assertOrder(t, []ReviewComment{
		comment(1, "src/z.go", 10),
		comment(2, "src/a.go", 10),
		comment(3, "src/m.go", 10),
	}, []uint64{2, 3, 1})

	assertOrder(t, []ReviewComment{
		comment(1, "src/lib.go", 100),
		comment(2, "src/lib.go", 10),
		comment(3, "src/lib.go", 50),
	}, []uint64{2, 3, 1})

	assertOrder(t, []ReviewComment{
		comment(300, "src/lib.go", 42),
		comment(100, "src/lib.go", 42),
		comment(200, "src/lib.go", 42),
	}, []uint64{100, 200, 300})
}

func TestSortCommentsForExport_AbsentsLast(t *testing.T) {
	assertOrder(t, []ReviewComment{
		comment(1, "", 10),
		comment(2, "src/lib.go", 10),
		comment(3, "", 5),
	}, []uint64{2, 3, 1})

	assertOrder(t, []ReviewComment{
		comment(1, "src/lib.go", 0),
		comment(2, "src/lib.go", 10),
		comment(3, "src/lib.go", 0),
	}, []uint64{2, 1, 3})
}

func TestSortCommentsForExport_Idempotent(t *testing.T) {
	comments := []ReviewComment{
		comment(5, "", 0),
		comment(4, "b.go", 2),
		comment(3, "a.go", 9),
		comment(2, "a.go", 1),
		comment(1, "b.go", 0),
	}
	SortCommentsForExport(comments)
	first := idsOf(comments)
	SortCommentsForExport(comments)
	second := idsOf(comments)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sorting is not idempotent: %v vs %v", first, second)
		}
	}
}

func TestCommitSnapshotShortSHA(t *testing.T) {
	s := CommitSnapshot{SHA: "0123456789abcdef"}
	if s.ShortSHA() != "0123456" {
		t.Errorf("unexpected short sha %q", s.ShortSHA())
	}
	tiny := CommitSnapshot{SHA: "ab"}
	if tiny.ShortSHA() != "ab" {
		t.Errorf("short sha of short input should be unchanged, got %q", tiny.ShortSHA())
	}
}

func TestLineMappingDisplay(t *testing.T) {
	if got := ExactMapping(4).String(); got != "line 4: exact" {
		t.Errorf("unexpected exact display %q", got)
	}
	if got := MovedMapping(2, 3).String(); got != "line 2: moved to 3 (+1)" {
		t.Errorf("unexpected moved display %q", got)
	}
	if got := MovedMapping(3, 2).String(); got != "line 3: moved to 2 (-1)" {
		t.Errorf("unexpected moved display %q", got)
	}
	if got := DeletedMapping(7).String(); got != "line 7: deleted" {
		t.Errorf("unexpected deleted display %q", got)
	}
	if got := NotFoundMapping(9).String(); got != "line 9: not found" {
		t.Errorf("unexpected not-found display %q", got)
	}
}

func TestMovedMappingOffset(t *testing.T) {
	m := MovedMapping(10, 7)
	if m.Offset != -3 {
		t.Errorf("expected offset -3, got %d", m.Offset)
	}
}
