package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	_ "modernc.org/sqlite"

	"github.com/onurmatik/taletinker/storytree"
)

const homeEnvVar = "TALETINKER_HOME"

// appDataPaths stores resolved locations under the taletinker home directory.
type appDataPaths struct {
	homeDir        string
	libraryDBPath  string
	configPath     string
	suggestionsDir string
}

// storyLine is one stored sentence of a finished story.
type storyLine struct {
	text     string
	isManual bool
}

// storyRecord is one finished story in the library.
type storyRecord struct {
	storyID     string
	rootStoryID string
	title       string
	tagline     string
	createdAt   string
	lines       []storyLine
}

func (r storyRecord) texts() []string {
	out := make([]string, 0, len(r.lines))
	for _, line := range r.lines {
		out = append(out, line.text)
	}
	return out
}

func (r storyRecord) displayTitle() string {
	if title := strings.TrimSpace(displayText(r.title)); title != "" {
		return title
	}
	return "Untitled Story"
}

func (r storyRecord) sequence() storytree.Sequence {
	return storytree.Sequence{
		StoryID:     r.storyID,
		RootStoryID: r.rootStoryID,
		Title:       r.title,
		Sentences:   r.texts(),
	}
}

func sequencesOf(records []storyRecord) []storytree.Sequence {
	out := make([]storytree.Sequence, 0, len(records))
	for _, r := range records {
		out = append(out, r.sequence())
	}
	return out
}

// draftRecord is an unfinished authoring session.
type draftRecord struct {
	draftID       string
	title         string
	originStoryID string
	session       *storytree.Session
	updatedAt     string
}

var (
	errStoryNotFound = errors.New("story not found")
	errDraftNotFound = errors.New("draft not found")
)

type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const librarySchema = `
CREATE TABLE IF NOT EXISTS stories (
	story_id TEXT PRIMARY KEY,
	root_story_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	tagline TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS story_lines (
	story_id TEXT NOT NULL REFERENCES stories(story_id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	text TEXT NOT NULL,
	is_manual INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (story_id, ordinal)
);
CREATE INDEX IF NOT EXISTS stories_root_idx ON stories(root_story_id);
CREATE TABLE IF NOT EXISTS drafts (
	draft_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	origin_story_id TEXT NOT NULL DEFAULT '',
	snapshot_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func resolveDataPaths() (appDataPaths, error) {
	base := strings.TrimSpace(os.Getenv(homeEnvVar))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return appDataPaths{}, fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, ".taletinker")
	}
	base = expandHomePath(base)
	return appDataPaths{
		homeDir:        base,
		libraryDBPath:  filepath.Join(base, "library.db"),
		configPath:     filepath.Join(base, "config.yaml"),
		suggestionsDir: filepath.Join(base, "suggestions"),
	}, nil
}

// openLibraryDB opens the story library, creating the file and schema on
// first use.
func openLibraryDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create library dir for %q: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}
	if err := ensureLibrarySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureLibrarySchema(ctx context.Context, q sqlQueryer) error {
	if _, err := q.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := q.ExecContext(ctx, librarySchema); err != nil {
		return fmt.Errorf("create library schema: %w", err)
	}
	return nil
}

// loadLibrary returns every story, oldest first, with its lines.
func loadLibrary(ctx context.Context, q sqlQueryer) ([]storyRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT story_id, root_story_id, title, tagline, created_at
		FROM stories
		ORDER BY created_at ASC, story_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	var stories []storyRecord
	byID := make(map[string]int)
	for rows.Next() {
		var r storyRecord
		if err := rows.Scan(&r.storyID, &r.rootStoryID, &r.title, &r.tagline, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan story row: %w", err)
		}
		byID[r.storyID] = len(stories)
		stories = append(stories, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}

	lineRows, err := q.QueryContext(ctx, `
		SELECT story_id, text, is_manual
		FROM story_lines
		ORDER BY story_id ASC, ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query story lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var (
			storyID string
			line    storyLine
			manual  int
		)
		if err := lineRows.Scan(&storyID, &line.text, &manual); err != nil {
			return nil, fmt.Errorf("scan story line: %w", err)
		}
		line.isManual = manual != 0
		if idx, ok := byID[storyID]; ok {
			stories[idx].lines = append(stories[idx].lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story lines: %w", err)
	}
	return stories, nil
}

func loadStory(ctx context.Context, q sqlQueryer, storyID string) (storyRecord, error) {
	r := storyRecord{storyID: storyID}
	err := q.QueryRowContext(ctx, `
		SELECT root_story_id, title, tagline, created_at
		FROM stories
		WHERE story_id = ?
	`, storyID).Scan(&r.rootStoryID, &r.title, &r.tagline, &r.createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storyRecord{}, fmt.Errorf("story %q: %w", storyID, errStoryNotFound)
	}
	if err != nil {
		return storyRecord{}, fmt.Errorf("query story %q: %w", storyID, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT text, is_manual
		FROM story_lines
		WHERE story_id = ?
		ORDER BY ordinal ASC
	`, storyID)
	if err != nil {
		return storyRecord{}, fmt.Errorf("query lines for story %q: %w", storyID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line   storyLine
			manual int
		)
		if err := rows.Scan(&line.text, &manual); err != nil {
			return storyRecord{}, fmt.Errorf("scan line for story %q: %w", storyID, err)
		}
		line.isManual = manual != 0
		r.lines = append(r.lines, line)
	}
	if err := rows.Err(); err != nil {
		return storyRecord{}, fmt.Errorf("iterate lines for story %q: %w", storyID, err)
	}
	return r, nil
}

func storyExists(ctx context.Context, q sqlQueryer, storyID string) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM stories
		WHERE story_id = ?
	`, storyID).Scan(&count); err != nil {
		return false, fmt.Errorf("query story %q: %w", storyID, err)
	}
	return count > 0, nil
}

// insertStory writes a story and its lines. Callers wanting atomicity pass a
// transaction.
func insertStory(ctx context.Context, q sqlQueryer, r storyRecord) error {
	if r.createdAt == "" {
		r.createdAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO stories (story_id, root_story_id, title, tagline, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.storyID, r.rootStoryID, r.title, r.tagline, r.createdAt); err != nil {
		return fmt.Errorf("insert story %q: %w", r.storyID, err)
	}
	for i, line := range r.lines {
		manual := 0
		if line.isManual {
			manual = 1
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO story_lines (story_id, ordinal, text, is_manual)
			VALUES (?, ?, ?, ?)
		`, r.storyID, i, line.text, manual); err != nil {
			return fmt.Errorf("insert line %d for story %q: %w", i, r.storyID, err)
		}
	}
	return nil
}

func saveDraft(ctx context.Context, q sqlQueryer, d draftRecord) error {
	if d.session == nil {
		return fmt.Errorf("save draft %q: no session", d.draftID)
	}
	data, err := d.session.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode draft %q: %w", d.draftID, err)
	}
	if d.updatedAt == "" {
		d.updatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO drafts (draft_id, title, origin_story_id, snapshot_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(draft_id) DO UPDATE SET
			title = excluded.title,
			origin_story_id = excluded.origin_story_id,
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at
	`, d.draftID, d.title, d.originStoryID, string(data), d.updatedAt); err != nil {
		return fmt.Errorf("save draft %q: %w", d.draftID, err)
	}
	return nil
}

func loadDraft(ctx context.Context, q sqlQueryer, draftID string) (draftRecord, error) {
	d := draftRecord{draftID: draftID}
	var snapshot string
	err := q.QueryRowContext(ctx, `
		SELECT title, origin_story_id, snapshot_json, updated_at
		FROM drafts
		WHERE draft_id = ?
	`, draftID).Scan(&d.title, &d.originStoryID, &snapshot, &d.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return draftRecord{}, fmt.Errorf("draft %q: %w", draftID, errDraftNotFound)
	}
	if err != nil {
		return draftRecord{}, fmt.Errorf("query draft %q: %w", draftID, err)
	}
	session, err := storytree.ParseSnapshot([]byte(snapshot))
	if err != nil {
		return draftRecord{}, fmt.Errorf("restore draft %q: %w", draftID, err)
	}
	d.session = session
	return d, nil
}

// latestDraftID returns the most recently saved draft, if any.
func latestDraftID(ctx context.Context, q sqlQueryer) (string, bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT draft_id
		FROM drafts
		ORDER BY updated_at DESC, draft_id ASC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query latest draft: %w", err)
	}
	return id, true, nil
}

func deleteDraft(ctx context.Context, q sqlQueryer, draftID string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM drafts WHERE draft_id = ?`, draftID)
	if err != nil {
		return fmt.Errorf("delete draft %q: %w", draftID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete draft %q: %w", draftID, errDraftNotFound)
	}
	return nil
}

func newRecordID() string {
	return uuid.NewString()
}

const maxDisplayBytes = 100_000 // truncate very long text content for display

// sanitizeForTerminal strips non-printable characters that corrupt terminal output.
// If more than 10% of the content is non-printable, it's treated as binary and replaced
// with a placeholder showing the byte count. Very long text is truncated.
func sanitizeForTerminal(s string) string {
	if len(s) == 0 {
		return s
	}
	nonPrintable := 0
	total := 0
	for _, r := range s {
		total++
		if isControlRune(r) {
			nonPrintable++
		}
	}
	if total > 0 && nonPrintable*10 > total {
		return fmt.Sprintf("[binary content, %s]", formatByteSizeCompact(int64(len(s))))
	}

	original := len(s)
	truncated := false
	if len(s) > maxDisplayBytes {
		for i := range s {
			if i >= maxDisplayBytes {
				s = s[:i]
				truncated = true
				break
			}
		}
	}

	result := s
	if nonPrintable > 0 {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if !isControlRune(r) {
				b.WriteRune(r)
			}
		}
		result = b.String()
	}
	if truncated {
		result += fmt.Sprintf("\n\n[truncated, full text is %s]", formatByteSizeCompact(int64(original)))
	}
	return result
}

// displayText makes stored text safe to draw. Stored text keeps its exact
// bytes since lines double as merge keys.
func displayText(s string) string {
	return sanitizeForTerminal(ansi.Strip(s))
}

func isControlRune(r rune) bool {
	return r != '\n' && r != '\r' && r != '\t' && (r < 32 || r == 127 || (r >= 0x80 && r <= 0x9F))
}

func formatByteSizeCompact(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}

// truncateDisplay cuts text to width terminal cells, marking the cut.
func truncateDisplay(text string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(text, width, "...")
}

func formatTimestamp(ts string) string {
	trimmed := strings.TrimSpace(ts)
	if trimmed == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return parsed.Local().Format("2006-01-02 15:04")
	}
	// SQLite bare datetime (stored as UTC, no timezone indicator)
	if parsed, err := time.Parse("2006-01-02 15:04:05", trimmed); err == nil {
		return parsed.In(time.UTC).Local().Format("2006-01-02 15:04")
	}
	return trimmed
}

func expandHomePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if trimmed != "~" && !strings.HasPrefix(trimmed, "~/") {
		return trimmed
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return trimmed
	}
	if trimmed == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(trimmed, "~/"))
}
