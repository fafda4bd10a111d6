package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

type importOptions struct {
	path   string
	apply  bool
	dryRun bool
}

// importRow is one JSONL story. Both the export field names (storyId,
// rootStoryId) and the short app names (id, rootId) are accepted.
type importRow struct {
	StoryID     string   `json:"storyId"`
	ID          string   `json:"id"`
	RootStoryID string   `json:"rootStoryId"`
	RootID      string   `json:"rootId"`
	Title       string   `json:"title"`
	Tagline     string   `json:"tagline"`
	Lines       []string `json:"lines"`
	ManualLines []int    `json:"manualLines"`
	CreatedAt   string   `json:"createdAt"`
}

type importSkip struct {
	lineNo int
	reason string
}

type importPlan struct {
	fresh    []storyRecord
	existing []string
	skipped  []importSkip
}

// runImportCommand executes the standalone import CLI path.
func runImportCommand(args []string) error {
	opts, err := parseImportArgs(args)
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

	records, skipped, err := parseImportFile(opts.path, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := openLibraryDB(ctx, paths.libraryDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	plan, err := buildImportPlan(ctx, db, records)
	if err != nil {
		return err
	}
	plan.skipped = skipped

	printImportReport(opts.path, plan)
	if opts.dryRun {
		if len(plan.fresh) > 0 {
			fmt.Println("\nDry run. Use --apply to import.")
		}
		return nil
	}

	imported, err := applyImportPlan(ctx, db, plan)
	if err != nil {
		return err
	}
	logger.Info("imported stories", zap.String("path", opts.path), zap.Int("count", imported))
	fmt.Printf("\nDone. Imported %d stories into %s.\n", imported, paths.libraryDBPath)
	return nil
}

func parseImportArgs(args []string) (importOptions, error) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	apply := fs.Bool("apply", false, "write new stories to the library")
	dryRun := fs.Bool("dry-run", true, "show what would be imported")

	normalized, err := normalizeCommandArgs(args, 1)
	if err != nil {
		return importOptions{}, fmt.Errorf("%w\n%s", err, importUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return importOptions{}, fmt.Errorf("%w\n%s", err, importUsageText())
	}
	if fs.NArg() != 1 {
		return importOptions{}, fmt.Errorf("a JSONL file is required\n%s", importUsageText())
	}

	opts := importOptions{
		path:   expandHomePath(fs.Arg(0)),
		apply:  *apply,
		dryRun: *dryRun,
	}
	opts.dryRun = !opts.apply
	return opts, nil
}

func importUsageText() string {
	return strings.TrimSpace(`
Usage:
  storymap import <stories.jsonl> [--dry-run]
  storymap import <stories.jsonl> --apply

Each line is a JSON object: {"storyId", "rootStoryId", "title", "tagline", "lines": [...], "createdAt"}.
`)
}

// normalizeCommandArgs moves flags ahead of positionals so flag.Parse sees
// them wherever the user typed them. Flags listed in valued consume the next
// argument.
func normalizeCommandArgs(args []string, maxPositionals int, valued ...string) ([]string, error) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, maxPositionals)

	takesValue := make(map[string]bool, len(valued))
	for _, name := range valued {
		takesValue[name] = true
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positionals = append(positionals, arg)
			continue
		}
		flags = append(flags, arg)
		if takesValue[arg] {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			i++
			flags = append(flags, args[i])
		}
	}
	if len(positionals) > maxPositionals {
		return nil, fmt.Errorf("unexpected argument %q", positionals[maxPositionals])
	}
	return append(flags, positionals...), nil
}

// parseImportFile reads stories from JSONL. Malformed rows are skipped and
// reported rather than failing the import.
func parseImportFile(path string, logger *zap.Logger) ([]storyRecord, []importSkip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open import file %q: %w", path, err)
	}
	defer file.Close()
	return parseImportStream(file, logger)
}

func parseImportStream(r io.Reader, logger *zap.Logger) ([]storyRecord, []importSkip, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var (
		records []storyRecord
		skipped []importSkip
	)
	seen := make(map[string]bool)
	lineNo := 0
	skip := func(reason string) {
		skipped = append(skipped, importSkip{lineNo: lineNo, reason: reason})
		logger.Warn("skipping import row", zap.Int("line", lineNo), zap.String("reason", reason))
	}
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row importRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			skip("invalid JSON")
			continue
		}
		rec, reason := row.record()
		if reason != "" {
			skip(reason)
			continue
		}
		if seen[rec.storyID] {
			skip(fmt.Sprintf("duplicate story id %s", rec.storyID))
			continue
		}
		seen[rec.storyID] = true
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan import file: %w", err)
	}
	return records, skipped, nil
}

func (row importRow) record() (storyRecord, string) {
	id := strings.TrimSpace(firstNonEmpty(row.StoryID, row.ID))
	if id == "" {
		return storyRecord{}, "missing story id"
	}
	manual := make(map[int]bool, len(row.ManualLines))
	for _, idx := range row.ManualLines {
		manual[idx] = true
	}
	rec := storyRecord{
		storyID:     id,
		rootStoryID: strings.TrimSpace(firstNonEmpty(row.RootStoryID, row.RootID)),
		title:       sanitizeForTerminal(strings.TrimSpace(row.Title)),
		tagline:     sanitizeForTerminal(strings.TrimSpace(row.Tagline)),
		createdAt:   normalizeImportTimestamp(row.CreatedAt),
	}
	if rec.rootStoryID == id {
		rec.rootStoryID = ""
	}
	for i, text := range row.Lines {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		rec.lines = append(rec.lines, storyLine{text: text, isManual: manual[i]})
	}
	if len(rec.lines) == 0 {
		return storyRecord{}, fmt.Sprintf("story %s has no lines", id)
	}
	return rec, ""
}

func normalizeImportTimestamp(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return parsed.UTC().Format(time.RFC3339Nano)
	}
	if parsed, err := time.Parse("2006-01-02", trimmed); err == nil {
		return parsed.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// buildImportPlan splits records into new stories and ids already present.
func buildImportPlan(ctx context.Context, q sqlQueryer, records []storyRecord) (importPlan, error) {
	var plan importPlan
	for _, rec := range records {
		exists, err := storyExists(ctx, q, rec.storyID)
		if err != nil {
			return importPlan{}, err
		}
		if exists {
			plan.existing = append(plan.existing, rec.storyID)
			continue
		}
		plan.fresh = append(plan.fresh, rec)
	}
	return plan, nil
}

func printImportReport(path string, plan importPlan) {
	fmt.Printf("Import: %s\n\n", path)
	fmt.Printf("New stories (%d):\n", len(plan.fresh))
	for _, rec := range plan.fresh {
		root := rec.rootStoryID
		if root == "" {
			root = "(own root)"
		}
		fmt.Printf("  %s  %-32s  %2d lines  root=%s\n", rec.storyID, truncateDisplay(rec.displayTitle(), 32), len(rec.lines), root)
	}
	if len(plan.existing) > 0 {
		fmt.Printf("\nAlready in library (%d), skipped:\n", len(plan.existing))
		for _, id := range plan.existing {
			fmt.Printf("  %s\n", id)
		}
	}
	if len(plan.skipped) > 0 {
		fmt.Printf("\nUnreadable rows (%d):\n", len(plan.skipped))
		for _, s := range plan.skipped {
			fmt.Printf("  line %d: %s\n", s.lineNo, s.reason)
		}
	}
}

// applyImportPlan inserts every new story in one transaction.
func applyImportPlan(ctx context.Context, db *sql.DB, plan importPlan) (int, error) {
	if len(plan.fresh) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import transaction: %w", err)
	}
	rollbackNeeded := true
	defer func() {
		if rollbackNeeded {
			_ = tx.Rollback()
		}
	}()

	for i, rec := range plan.fresh {
		if err := insertStory(ctx, tx, rec); err != nil {
			return i, err
		}
	}
	if err := tx.Commit(); err != nil {
		return len(plan.fresh), fmt.Errorf("commit import transaction: %w", err)
	}
	rollbackNeeded = false
	return len(plan.fresh), nil
}
