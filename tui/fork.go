package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/onurmatik/taletinker/storytree"
)

type forkOptions struct {
	replacement string
	replace     bool
	title       string
	apply       bool
	dryRun      bool
}

// forkPlan is a draft that starts from a finished story's first lines.
type forkPlan struct {
	source storyRecord
	line   int // 1-based line the fork keeps up to
	draft  draftRecord
}

// runForkCommand executes the standalone fork CLI path.
func runForkCommand(args []string) error {
	opts, storyID, line, err := parseForkArgs(args)
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

	plan, err := buildForkPlan(ctx, db, storyID, line, opts)
	if err != nil {
		return err
	}
	printForkReport(plan)
	if opts.dryRun {
		fmt.Println("\nDry run. Use --apply to save the draft.")
		return nil
	}

	if err := saveDraft(ctx, db, plan.draft); err != nil {
		return err
	}
	logger.Info("forked story",
		zap.String("source", plan.source.storyID),
		zap.Int("line", plan.line),
		zap.String("draft", plan.draft.draftID),
	)
	fmt.Printf("\nDone. Saved draft %s. Open it with `storymap` and press d.\n", plan.draft.draftID)
	return nil
}

func parseForkArgs(args []string) (forkOptions, string, int, error) {
	fs := flag.NewFlagSet("fork", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	replacement := fs.String("replace", "", "replace the kept line with this text")
	title := fs.String("title", "", "title for the new draft")
	apply := fs.Bool("apply", false, "save the draft")
	dryRun := fs.Bool("dry-run", true, "show the draft without saving")

	normalized, err := normalizeCommandArgs(args, 2, "--replace", "-replace", "--title", "-title")
	if err != nil {
		return forkOptions{}, "", 0, fmt.Errorf("%w\n%s", err, forkUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return forkOptions{}, "", 0, fmt.Errorf("%w\n%s", err, forkUsageText())
	}
	if fs.NArg() != 2 {
		return forkOptions{}, "", 0, fmt.Errorf("story id and line number are required\n%s", forkUsageText())
	}

	storyID := strings.TrimSpace(fs.Arg(0))
	if storyID == "" {
		return forkOptions{}, "", 0, fmt.Errorf("story id is required\n%s", forkUsageText())
	}
	line, err := strconv.Atoi(fs.Arg(1))
	if err != nil || line < 1 {
		return forkOptions{}, "", 0, fmt.Errorf("invalid line number %q\n%s", fs.Arg(1), forkUsageText())
	}

	opts := forkOptions{
		title:  strings.TrimSpace(*title),
		apply:  *apply,
		dryRun: *dryRun,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "replace" {
			opts.replace = true
			opts.replacement = strings.TrimSpace(*replacement)
		}
	})
	if opts.replace && opts.replacement == "" {
		return forkOptions{}, "", 0, fmt.Errorf("--replace needs non-empty text\n%s", forkUsageText())
	}
	opts.dryRun = !opts.apply
	return opts, storyID, line, nil
}

func forkUsageText() string {
	return strings.TrimSpace(`
Usage:
  storymap fork <story-id> <line> [--replace <text>] [--title <title>] [--dry-run]
  storymap fork <story-id> <line> [--replace <text>] [--title <title>] --apply

Keeps lines 1..<line> of the story as a new draft. With --replace the last kept
line is swapped for <text>.
`)
}

// buildForkPlan copies the first line sentences of storyID into a fresh
// session. line is 1-based.
func buildForkPlan(ctx context.Context, q sqlQueryer, storyID string, line int, opts forkOptions) (forkPlan, error) {
	source, err := loadStory(ctx, q, storyID)
	if err != nil {
		return forkPlan{}, err
	}

	var forkOpts []storytree.ForkOption
	if opts.replace {
		forkOpts = append(forkOpts, storytree.WithReplacement(opts.replacement))
	}
	session, err := storytree.Fork(source.texts(), line-1, forkOpts...)
	if err != nil {
		return forkPlan{}, fmt.Errorf("fork story %q: %w", storyID, err)
	}

	title := opts.title
	if title == "" {
		title = storytree.RemixTitle(source.title)
	}
	return forkPlan{
		source: source,
		line:   line,
		draft: draftRecord{
			draftID:       newRecordID(),
			title:         title,
			originStoryID: source.storyID,
			session:       session,
		},
	}, nil
}

func printForkReport(plan forkPlan) {
	fmt.Printf("Fork: %s (%s)\n", plan.source.storyID, plan.source.displayTitle())
	fmt.Printf("Draft: %s\n", plan.draft.title)
	fmt.Printf("Keeps %d of %d lines\n\n", plan.line, len(plan.source.lines))

	diff := buildLineDiff("story/"+plan.source.storyID, "draft/"+plan.draft.draftID, plan.source.texts(), plan.draft.session.Lines())
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		fmt.Println(colorizeDiffLine(line))
	}
}
