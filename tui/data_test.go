package main

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onurmatik/taletinker/storytree"
)

func newLibraryTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openLibraryDB(context.Background(), filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open library db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedStory(t *testing.T, db *sql.DB, id, root, title, createdAt string, lines ...string) storyRecord {
	t.Helper()
	rec := storyRecord{storyID: id, rootStoryID: root, title: title, createdAt: createdAt}
	for _, line := range lines {
		rec.lines = append(rec.lines, storyLine{text: line})
	}
	if err := insertStory(context.Background(), db, rec); err != nil {
		t.Fatalf("seed story %s: %v", id, err)
	}
	return rec
}

func mustExec(t *testing.T, db *sql.DB, query string) {
	t.Helper()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("exec query failed: %v\nquery:\n%s", err, query)
	}
}

func assertCount(t *testing.T, db *sql.DB, query string, want int, args ...any) {
	t.Helper()
	var got int
	if err := db.QueryRow(query, args...).Scan(&got); err != nil {
		t.Fatalf("query count failed: %v\nquery:\n%s", err, query)
	}
	if got != want {
		t.Fatalf("count mismatch: got=%d want=%d\nquery:\n%s", got, want, query)
	}
}

func TestInsertStoryRoundTripsThroughLoadLibrary(t *testing.T) {
	t.Parallel()
	db := newLibraryTestDB(t)
	ctx := context.Background()

	seedStory(t, db, "s2", "s1", "Second", "2026-03-02T00:00:00Z", "A", "C")
	first := storyRecord{
		storyID:   "s1",
		title:     "First",
		tagline:   "where it began",
		createdAt: "2026-03-01T00:00:00Z",
		lines: []storyLine{
			{text: "A"},
			{text: "B", isManual: true},
		},
	}
	if err := insertStory(ctx, db, first); err != nil {
		t.Fatalf("insert story: %v", err)
	}

	stories, err := loadLibrary(ctx, db)
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("story count mismatch: got=%d want=2", len(stories))
	}
	if stories[0].storyID != "s1" || stories[1].storyID != "s2" {
		t.Fatalf("stories not oldest first: %s, %s", stories[0].storyID, stories[1].storyID)
	}
	got := stories[0]
	if got.tagline != "where it began" || len(got.lines) != 2 || !got.lines[1].isManual || got.lines[0].isManual {
		t.Fatalf("unexpected first story: %+v", got)
	}

	seqs := sequencesOf(stories)
	if seqs[1].RootID() != "s1" || seqs[0].RootID() != "s1" {
		t.Fatalf("family mismatch: %q %q", seqs[0].RootID(), seqs[1].RootID())
	}
	assertCount(t, db, `SELECT COUNT(*) FROM story_lines`, 4)
}

func TestLoadStoryMissingIsNotFound(t *testing.T) {
	t.Parallel()
	db := newLibraryTestDB(t)

	_, err := loadStory(context.Background(), db, "ghost")
	if !errors.Is(err, errStoryNotFound) {
		t.Fatalf("expected errStoryNotFound, got %v", err)
	}
}

func TestDraftSaveLoadAndDelete(t *testing.T) {
	t.Parallel()
	db := newLibraryTestDB(t)
	ctx := context.Background()

	if _, ok, err := latestDraftID(ctx, db); err != nil || ok {
		t.Fatalf("expected no drafts, ok=%v err=%v", ok, err)
	}

	session := storytree.NewSession()
	for _, line := range []string{"A", "B", "C"} {
		if _, err := session.Append(line, false); err != nil {
			t.Fatalf("append %s: %v", line, err)
		}
	}
	path := session.CurrentPath()
	if err := session.SetHead(path[1].ID); err != nil {
		t.Fatalf("set head: %v", err)
	}

	older := draftRecord{draftID: "d1", title: "Old", session: storytree.NewSession(), updatedAt: "2026-03-01T00:00:00Z"}
	newer := draftRecord{draftID: "d2", title: "New", originStoryID: "s1", session: session, updatedAt: "2026-03-02T00:00:00Z"}
	for _, d := range []draftRecord{older, newer} {
		if err := saveDraft(ctx, db, d); err != nil {
			t.Fatalf("save draft %s: %v", d.draftID, err)
		}
	}
	// Saving again updates in place.
	newer.title = "Newer"
	if err := saveDraft(ctx, db, newer); err != nil {
		t.Fatalf("resave draft: %v", err)
	}
	assertCount(t, db, `SELECT COUNT(*) FROM drafts`, 2)

	id, ok, err := latestDraftID(ctx, db)
	if err != nil || !ok || id != "d2" {
		t.Fatalf("latest draft mismatch: id=%q ok=%v err=%v", id, ok, err)
	}

	loaded, err := loadDraft(ctx, db, "d2")
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if loaded.title != "Newer" || loaded.originStoryID != "s1" {
		t.Fatalf("unexpected draft metadata: %+v", loaded)
	}
	if got := strings.Join(loaded.session.Lines(), ","); got != "A,B" {
		t.Fatalf("restored path mismatch: got=%q want=%q", got, "A,B")
	}
	if loaded.session.Len() != 3 {
		t.Fatalf("restored node count mismatch: got=%d want=3", loaded.session.Len())
	}

	if err := deleteDraft(ctx, db, "d2"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if err := deleteDraft(ctx, db, "d2"); !errors.Is(err, errDraftNotFound) {
		t.Fatalf("expected errDraftNotFound on second delete, got %v", err)
	}
	if _, err := loadDraft(ctx, db, "d2"); !errors.Is(err, errDraftNotFound) {
		t.Fatalf("expected errDraftNotFound on load, got %v", err)
	}
}

func TestLoadDraftRejectsCorruptSnapshot(t *testing.T) {
	t.Parallel()
	db := newLibraryTestDB(t)

	mustExec(t, db, `
		INSERT INTO drafts (draft_id, title, origin_story_id, snapshot_json, updated_at)
		VALUES ('bad', '', '', '{"version": 9, "nodes": []}', '2026-03-01T00:00:00Z')
	`)
	_, err := loadDraft(context.Background(), db, "bad")
	if !errors.Is(err, storytree.ErrSnapshotVersion) {
		t.Fatalf("expected ErrSnapshotVersion, got %v", err)
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Once upon a time.", want: "Once upon a time."},
		{name: "strips escape", in: "a fairly long sentence\x1b here", want: "a fairly long sentence here"},
		{name: "binary", in: "\x00\x01\x02\x03", want: "[binary content, 4 B]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeForTerminal(tc.in); got != tc.want {
				t.Fatalf("sanitizeForTerminal(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
