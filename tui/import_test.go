package main

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const importFixture = `{"storyId":"s1","title":"The Lighthouse","lines":["A keeper lived alone."," He lit the lamp. ",""],"manualLines":[1],"createdAt":"2026-03-01T10:00:00Z"}
not json at all
{"title":"No id","lines":["x"]}
{"id":"s2","rootId":"s1","title":"The Lighthouse (Alt)","lines":["A keeper lived alone.","A ship came."],"createdAt":"2026-03-02"}
{"storyId":"s1","title":"duplicate","lines":["y"]}

{"storyId":"s3","lines":["   "]}
`

func TestParseImportStreamSkipsBadRows(t *testing.T) {
	t.Parallel()

	records, skipped, err := parseImportStream(strings.NewReader(importFixture), zap.NewNop())
	if err != nil {
		t.Fatalf("parse import stream: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count mismatch: got=%d want=2", len(records))
	}
	if len(skipped) != 4 {
		t.Fatalf("skip count mismatch: got=%d want=4 (%+v)", len(skipped), skipped)
	}
	wantLines := []int{2, 3, 5, 7}
	for i, s := range skipped {
		if s.lineNo != wantLines[i] {
			t.Fatalf("skip %d line mismatch: got=%d want=%d (%s)", i, s.lineNo, wantLines[i], s.reason)
		}
	}

	first := records[0]
	if got := strings.Join(first.texts(), "|"); got != "A keeper lived alone.|He lit the lamp." {
		t.Fatalf("first story lines mismatch: %q", got)
	}
	if first.lines[0].isManual || !first.lines[1].isManual {
		t.Fatalf("manual flags mismatch: %+v", first.lines)
	}
	if first.createdAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("createdAt mismatch: %q", first.createdAt)
	}

	second := records[1]
	if second.storyID != "s2" || second.rootStoryID != "s1" {
		t.Fatalf("alias fields not read: %+v", second)
	}
	if second.createdAt != "2026-03-02T00:00:00Z" {
		t.Fatalf("date-only createdAt mismatch: %q", second.createdAt)
	}
}

func TestImportRowDropsSelfRoot(t *testing.T) {
	t.Parallel()

	rec, reason := importRow{StoryID: "s1", RootStoryID: "s1", Lines: []string{"x"}}.record()
	if reason != "" {
		t.Fatalf("unexpected skip: %s", reason)
	}
	if rec.rootStoryID != "" {
		t.Fatalf("self root should be cleared, got %q", rec.rootStoryID)
	}
}

func TestApplyImportPlanSkipsExistingStories(t *testing.T) {
	t.Parallel()
	db := newLibraryTestDB(t)
	ctx := context.Background()
	seedStory(t, db, "s1", "", "Already here", "2026-01-01T00:00:00Z", "A")

	records, _, err := parseImportStream(strings.NewReader(importFixture), zap.NewNop())
	if err != nil {
		t.Fatalf("parse import stream: %v", err)
	}
	plan, err := buildImportPlan(ctx, db, records)
	if err != nil {
		t.Fatalf("build import plan: %v", err)
	}
	if len(plan.fresh) != 1 || plan.fresh[0].storyID != "s2" {
		t.Fatalf("fresh stories mismatch: %+v", plan.fresh)
	}
	if len(plan.existing) != 1 || plan.existing[0] != "s1" {
		t.Fatalf("existing stories mismatch: %+v", plan.existing)
	}

	n, err := applyImportPlan(ctx, db, plan)
	if err != nil {
		t.Fatalf("apply import plan: %v", err)
	}
	if n != 1 {
		t.Fatalf("imported count mismatch: got=%d want=1", n)
	}
	assertCount(t, db, `SELECT COUNT(*) FROM stories`, 2)
	assertCount(t, db, `SELECT COUNT(*) FROM story_lines WHERE story_id = ?`, 2, "s2")
	assertCount(t, db, `SELECT COUNT(*) FROM stories WHERE story_id = 's1' AND title = 'Already here'`, 1)
}

func TestApplyImportPlanRollsBackOnConflict(t *testing.T) {
	t.Parallel()
	db := newLibraryTestDB(t)
	ctx := context.Background()
	seedStory(t, db, "taken", "", "Taken", "2026-01-01T00:00:00Z", "A")

	// A plan built before "taken" existed still lists it as fresh.
	plan := importPlan{fresh: []storyRecord{
		{storyID: "new", lines: []storyLine{{text: "x"}}},
		{storyID: "taken", lines: []storyLine{{text: "y"}}},
	}}
	if _, err := applyImportPlan(ctx, db, plan); err == nil {
		t.Fatalf("expected conflict error")
	}
	assertCount(t, db, `SELECT COUNT(*) FROM stories WHERE story_id = 'new'`, 0)
	assertCount(t, db, `SELECT COUNT(*) FROM story_lines`, 1)
}

func TestParseImportArgs(t *testing.T) {
	t.Parallel()

	opts, err := parseImportArgs([]string{"stories.jsonl", "--apply"})
	if err != nil {
		t.Fatalf("parse import args: %v", err)
	}
	if opts.path != "stories.jsonl" || !opts.apply || opts.dryRun {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = parseImportArgs([]string{"stories.jsonl"})
	if err != nil {
		t.Fatalf("parse import args: %v", err)
	}
	if !opts.dryRun {
		t.Fatalf("expected dry run by default")
	}

	for _, args := range [][]string{nil, {"a.jsonl", "b.jsonl"}, {"a.jsonl", "--bogus"}} {
		if _, err := parseImportArgs(args); err == nil {
			t.Fatalf("expected error for args %q", args)
		}
	}
}

func TestNormalizeCommandArgs(t *testing.T) {
	t.Parallel()

	got, err := normalizeCommandArgs([]string{"s1", "--title", "My title", "3", "--apply"}, 2, "--title")
	if err != nil {
		t.Fatalf("normalize args: %v", err)
	}
	want := "--title|My title|--apply|s1|3"
	if strings.Join(got, "|") != want {
		t.Fatalf("normalized args mismatch: got=%q want=%q", strings.Join(got, "|"), want)
	}

	if _, err := normalizeCommandArgs([]string{"s1", "--title"}, 1, "--title"); err == nil {
		t.Fatalf("expected missing value error")
	}
}
