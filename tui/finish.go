package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/onurmatik/taletinker/storytree"
)

var errStoryTooShort = errors.New("story is too short to end")

type finishOptions struct {
	draftID string
	title   string
	tagline string
	apply   bool
}

// finishPlan turns a draft's current path into a library story.
type finishPlan struct {
	draft draftRecord
	story storyRecord
}

// runFinishCommand executes the standalone finish CLI path.
func runFinishCommand(args []string) error {
	opts, err := parseFinishArgs(args)
	if err != nil {
		return err
	}

	paths, cfg, err := loadAppContext()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := openLibraryDB(ctx, paths.libraryDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.draftID == "" {
		id, ok, err := latestDraftID(ctx, db)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no drafts to finish")
		}
		opts.draftID = id
	}

	plan, err := buildFinishPlan(ctx, db, opts, cfg.MinStoryLines)
	if err != nil {
		return err
	}

	fmt.Printf("Finish draft %s as story %s\n", plan.draft.draftID, plan.story.storyID)
	fmt.Printf("Title: %s\n", plan.story.displayTitle())
	if plan.story.rootStoryID != "" {
		fmt.Printf("Family: %s\n", plan.story.rootStoryID)
	}
	fmt.Println()
	for i, line := range plan.story.lines {
		marker := " "
		if line.isManual {
			marker = "*"
		}
		fmt.Printf("%3d %s %s\n", i+1, marker, line.text)
	}

	if !opts.apply {
		fmt.Println("\nDry run. Use --apply to save the story.")
		return nil
	}
	if err := applyFinishPlan(ctx, db, plan); err != nil {
		return err
	}
	logger.Info("finished draft",
		zap.String("draft", plan.draft.draftID),
		zap.String("story", plan.story.storyID),
		zap.Int("lines", len(plan.story.lines)),
	)
	fmt.Printf("\nDone. Saved %q to the library.\n", plan.story.displayTitle())
	return nil
}

func parseFinishArgs(args []string) (finishOptions, error) {
	fs := flag.NewFlagSet("finish", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	title := fs.String("title", "", "title for the finished story")
	tagline := fs.String("tagline", "", "one-line tagline")
	apply := fs.Bool("apply", false, "save the story")

	normalized, err := normalizeCommandArgs(args, 1, "--title", "-title", "--tagline", "-tagline")
	if err != nil {
		return finishOptions{}, fmt.Errorf("%w\n%s", err, finishUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return finishOptions{}, fmt.Errorf("%w\n%s", err, finishUsageText())
	}

	return finishOptions{
		draftID: strings.TrimSpace(fs.Arg(0)),
		title:   strings.TrimSpace(*title),
		tagline: strings.TrimSpace(*tagline),
		apply:   *apply,
	}, nil
}

func finishUsageText() string {
	return strings.TrimSpace(`
Usage:
  storymap finish [draft-id] [--title <title>] [--tagline <text>]
  storymap finish [draft-id] [--title <title>] [--tagline <text>] --apply

Without a draft id the most recently saved draft is used.
`)
}

// buildFinishPlan validates the draft's current path against minLines. A
// trailing end marker on the path is not stored.
func buildFinishPlan(ctx context.Context, q sqlQueryer, opts finishOptions, minLines int) (finishPlan, error) {
	draft, err := loadDraft(ctx, q, opts.draftID)
	if err != nil {
		return finishPlan{}, err
	}

	path := draft.session.CurrentPath()
	if n := len(path); n > 0 && storytree.IsEndMarker(path[n-1].Text) {
		path = path[:n-1]
	}
	if !storytree.CanEnd(len(path), minLines) {
		return finishPlan{}, fmt.Errorf("draft %q has %d lines, needs %d more: %w",
			draft.draftID, len(path), storytree.LinesUntilEnd(len(path), minLines), errStoryTooShort)
	}

	rootID, err := familyRootFor(ctx, q, draft.originStoryID)
	if err != nil {
		return finishPlan{}, err
	}

	title := opts.title
	if title == "" {
		title = draft.title
	}
	story := storyRecord{
		storyID:     newRecordID(),
		rootStoryID: rootID,
		title:       title,
		tagline:     opts.tagline,
	}
	for _, n := range path {
		story.lines = append(story.lines, storyLine{text: n.Text, isManual: n.IsManual})
	}
	return finishPlan{draft: draft, story: story}, nil
}

// familyRootFor returns the family a story forked from originID joins. A
// missing origin still names the family so siblings stay grouped.
func familyRootFor(ctx context.Context, q sqlQueryer, originID string) (string, error) {
	if originID == "" {
		return "", nil
	}
	origin, err := loadStory(ctx, q, originID)
	if errors.Is(err, errStoryNotFound) {
		return originID, nil
	}
	if err != nil {
		return "", err
	}
	return origin.sequence().RootID(), nil
}

// applyFinishPlan stores the story and removes its draft atomically.
func applyFinishPlan(ctx context.Context, db *sql.DB, plan finishPlan) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish transaction: %w", err)
	}
	rollbackNeeded := true
	defer func() {
		if rollbackNeeded {
			_ = tx.Rollback()
		}
	}()

	if err := insertStory(ctx, tx, plan.story); err != nil {
		return err
	}
	if err := deleteDraft(ctx, tx, plan.draft.draftID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish transaction: %w", err)
	}
	rollbackNeeded = false
	return nil
}
