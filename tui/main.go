package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/onurmatik/taletinker/storytree"
)

type screen int

const (
	screenLibrary screen = iota
	screenReader
	screenMap
	screenAuthor
)

// readerInput is what the reader's text prompt is collecting.
type readerInput int

const (
	readerInputNone readerInput = iota
	readerInputEdit
	readerInputAlt
)

// draftStoryPrefix marks the in-progress draft when it is merged into a map.
const draftStoryPrefix = "draft:"

// model tracks TUI state across all screens.
type model struct {
	screen screen
	paths  appDataPaths
	cfg    appConfig

	db      *sql.DB
	logger  *zap.Logger
	layouts *storytree.LayoutCache
	watcher *libraryWatcher
	suggest *suggester

	stories       []storyRecord
	visible       []int // indexes into stories after the filter
	libraryCursor int
	filterInput   textinput.Model
	filtering     bool

	readerStoryID string
	readerCursor  int
	readerInput   readerInput
	lineInput     textinput.Model

	mapStoryID  string
	mapLayout   storytree.Layout
	mapCursor   int
	mapReturn   screen
	mapViewport viewport.Model

	author *authorState

	width  int
	height int

	status string
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))

	manualLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	endMarkerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

	mapCurrentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mapOtherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	diffAddStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	diffRemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	diffHunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	diffHeaderStyle = lipgloss.NewStyle().Bold(true)
)

func main() {
	commands := map[string]func([]string) error{
		"import":      runImportCommand,
		"fork":        runForkCommand,
		"finish":      runFinishCommand,
		"layout":      runLayoutCommand,
		"suggestions": runSuggestionsCommand,
	}
	if len(os.Args) > 1 {
		if run, ok := commands[os.Args[1]]; ok {
			if err := run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "storymap %s failed: %v\n", os.Args[1], err)
				os.Exit(1)
			}
			return
		}
	}

	if err := runInteractive(); err != nil {
		fmt.Fprintf(os.Stderr, "storymap failed: %v\n", err)
		os.Exit(1)
	}
}

func runInteractive() error {
	paths, cfg, err := loadAppContext()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := openLibraryDB(context.Background(), paths.libraryDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	deck, err := loadSuggestionDeck(cfg.SuggestionsDir)
	if err != nil {
		return err
	}

	var watcher *libraryWatcher
	if cfg.WatchLibrary {
		watcher, err = startLibraryWatcher(paths.libraryDBPath, logger)
		if err != nil {
			logger.Warn("library watcher disabled", zap.Error(err))
			watcher = nil
		} else {
			defer watcher.Close()
		}
	}

	m := newModel(paths, cfg, db, logger, newSuggester(deck, cfg.SuggestionCount, nil))
	m.watcher = watcher
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func newModel(paths appDataPaths, cfg appConfig, db *sql.DB, logger *zap.Logger, s *suggester) model {
	filter := textinput.New()
	filter.Placeholder = "filter stories"
	filter.CharLimit = 80
	filter.Prompt = "/ "

	line := textinput.New()
	line.CharLimit = 400
	line.Prompt = "> "

	m := model{
		screen:      screenLibrary,
		paths:       paths,
		cfg:         cfg,
		db:          db,
		logger:      logger,
		layouts:     storytree.NewLayoutCache(cfg.Geometry),
		suggest:     s,
		filterInput: filter,
		lineInput:   line,
	}
	if err := m.reloadLibrary(); err != nil {
		m.status = "Error: " + err.Error()
		return m
	}
	m.status = fmt.Sprintf("Loaded %d stories from %s", len(m.stories), paths.libraryDBPath)
	return m
}

func (m model) Init() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.wait()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		m.refreshMapViewport()
		return m, nil
	case libraryChangedMsg:
		if err := m.reloadLibrary(); err != nil {
			m.status = "Error: " + err.Error()
		} else {
			m.status = fmt.Sprintf("Library changed on disk, %d stories", len(m.stories))
			m.logger.Debug("library reloaded", zap.Int("stories", len(m.stories)))
		}
		if m.screen == screenMap {
			m.rebuildMap()
		}
		if m.watcher == nil {
			return m, nil
		}
		return m, m.watcher.wait()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if msg.String() == "q" && !m.typing() {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// typing reports whether keys go to a text input.
func (m model) typing() bool {
	switch m.screen {
	case screenLibrary:
		return m.filtering
	case screenReader:
		return m.readerInput != readerInputNone
	case screenAuthor:
		return m.author != nil && m.author.typing
	default:
		return false
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenLibrary:
		return m.handleLibraryKey(msg)
	case screenReader:
		return m.handleReaderKey(msg)
	case screenMap:
		return m.handleMapKey(msg)
	case screenAuthor:
		return m.handleAuthorKey(msg)
	default:
		return m, nil
	}
}

func (m model) handleLibraryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "enter":
			m.filtering = false
			m.filterInput.Blur()
			return m, nil
		case "esc":
			m.filtering = false
			m.filterInput.Blur()
			m.filterInput.SetValue("")
			m.applyFilter()
			return m, nil
		}
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		m.libraryCursor = clamp(m.libraryCursor-1, 0, len(m.visible)-1)
	case "down", "j":
		m.libraryCursor = clamp(m.libraryCursor+1, 0, len(m.visible)-1)
	case "g":
		m.libraryCursor = 0
	case "G":
		m.libraryCursor = max(0, len(m.visible)-1)
	case "/":
		m.filtering = true
		m.filterInput.Focus()
		return m, textinput.Blink
	case "enter":
		story, ok := m.currentStory()
		if !ok {
			m.status = "No story selected"
			return m, nil
		}
		m.openReader(story.storyID)
	case "m":
		story, ok := m.currentStory()
		if !ok {
			m.status = "No story selected"
			return m, nil
		}
		m.openMap(story.storyID, screenLibrary)
	case "n":
		m.startDraft(draftRecord{
			draftID: newRecordID(),
			session: storytree.NewSession(),
		})
		m.status = "New story"
	case "d":
		m.resumeLatestDraft()
	case "r":
		if err := m.reloadLibrary(); err != nil {
			m.status = "Error: " + err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("Reloaded %d stories", len(m.stories))
	}
	return m, nil
}

func (m model) handleReaderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	story, ok := m.readerStory()
	if !ok {
		m.screen = screenLibrary
		m.status = "Story no longer in library"
		return m, nil
	}

	if m.readerInput != readerInputNone {
		switch msg.String() {
		case "esc":
			m.readerInput = readerInputNone
			m.lineInput.Blur()
			m.lineInput.SetValue("")
			m.status = "Cancelled"
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.lineInput.Value())
			if text == "" {
				m.status = "Type a sentence first"
				return m, nil
			}
			mode := m.readerInput
			m.readerInput = readerInputNone
			m.lineInput.Blur()
			m.lineInput.SetValue("")
			if mode == readerInputEdit {
				m.forkStory(story, m.readerCursor, &text)
			} else {
				m.addAlternative(story, m.readerCursor, text)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.lineInput, cmd = m.lineInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		m.readerCursor = clamp(m.readerCursor-1, 0, len(story.lines)-1)
	case "down", "j":
		m.readerCursor = clamp(m.readerCursor+1, 0, len(story.lines)-1)
	case "g":
		m.readerCursor = 0
	case "G":
		m.readerCursor = max(0, len(story.lines)-1)
	case "f":
		m.forkStory(story, m.readerCursor, nil)
	case "e":
		m.readerInput = readerInputEdit
		m.lineInput.Placeholder = "replacement for this line"
		m.lineInput.SetValue(story.lines[m.readerCursor].text)
		m.lineInput.Focus()
		return m, textinput.Blink
	case "a":
		m.readerInput = readerInputAlt
		m.lineInput.Placeholder = "alternative for this line"
		m.lineInput.SetValue("")
		m.lineInput.Focus()
		return m, textinput.Blink
	case "m":
		m.openMap(story.storyID, screenReader)
	case "b", "backspace", "esc":
		m.screen = screenLibrary
		m.status = "Back to library"
	}
	return m, nil
}

func (m model) handleMapKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mapLayout.Empty() {
		if msg.String() == "b" || msg.String() == "esc" {
			m.screen = m.mapReturn
		}
		return m, nil
	}
	nodes := m.mapLayout.Nodes
	switch msg.String() {
	case "up", "k":
		m.mapCursor = clamp(m.mapCursor-1, 0, len(nodes)-1)
	case "down", "j":
		m.mapCursor = clamp(m.mapCursor+1, 0, len(nodes)-1)
	case "left", "h":
		if parent, ok := m.mapLayout.Parent(nodes[m.mapCursor].ID); ok {
			m.mapCursor = m.mapNodeIndex(parent.ID)
		}
	case "right", "l":
		if children := m.mapLayout.Children(nodes[m.mapCursor].ID); len(children) > 0 {
			m.mapCursor = m.mapNodeIndex(children[0].ID)
		}
	case "g":
		m.mapCursor = 0
	case "G":
		m.mapCursor = len(nodes) - 1
	case "enter":
		storyID, ok := m.mapLayout.SelectStory(nodes[m.mapCursor].ID)
		if !ok {
			m.status = "Nothing to open at this node"
			return m, nil
		}
		if strings.HasPrefix(storyID, draftStoryPrefix) && m.author != nil {
			m.screen = screenAuthor
			m.status = "Back to draft"
			return m, nil
		}
		m.openReader(storyID)
		return m, nil
	case "b", "backspace", "esc":
		m.screen = m.mapReturn
		m.status = ""
		return m, nil
	}
	m.refreshMapViewport()
	return m, nil
}

func (m *model) mapNodeIndex(id string) int {
	for i, n := range m.mapLayout.Nodes {
		if n.ID == id {
			return i
		}
	}
	return m.mapCursor
}

func (m *model) reloadLibrary() error {
	stories, err := loadLibrary(context.Background(), m.db)
	if err != nil {
		return err
	}
	m.stories = stories
	m.applyFilter()
	return nil
}

// applyFilter recomputes the visible story list. Without a query every story
// is shown newest first; with one, fuzzy match order wins.
func (m *model) applyFilter() {
	query := strings.TrimSpace(m.filterInput.Value())
	m.visible = make([]int, 0, len(m.stories))
	if query == "" {
		for i := len(m.stories) - 1; i >= 0; i-- {
			m.visible = append(m.visible, i)
		}
	} else {
		haystack := make([]string, len(m.stories))
		for i, s := range m.stories {
			first := ""
			if len(s.lines) > 0 {
				first = s.lines[0].text
			}
			haystack[i] = s.displayTitle() + " " + s.tagline + " " + first
		}
		for _, match := range fuzzy.Find(query, haystack) {
			m.visible = append(m.visible, match.Index)
		}
	}
	m.libraryCursor = clamp(m.libraryCursor, 0, len(m.visible)-1)
}

func (m model) currentStory() (storyRecord, bool) {
	if len(m.visible) == 0 || m.libraryCursor < 0 || m.libraryCursor >= len(m.visible) {
		return storyRecord{}, false
	}
	return m.stories[m.visible[m.libraryCursor]], true
}

func (m model) findStory(id string) (storyRecord, bool) {
	for _, s := range m.stories {
		if s.storyID == id {
			return s, true
		}
	}
	return storyRecord{}, false
}

func (m model) readerStory() (storyRecord, bool) {
	story, ok := m.findStory(m.readerStoryID)
	if !ok || len(story.lines) == 0 {
		return storyRecord{}, false
	}
	return story, true
}

func (m *model) openReader(storyID string) {
	story, ok := m.findStory(storyID)
	if !ok {
		m.status = fmt.Sprintf("Story %s not found", storyID)
		return
	}
	m.readerStoryID = storyID
	m.readerCursor = 0
	m.readerInput = readerInputNone
	m.screen = screenReader
	m.status = fmt.Sprintf("%s, %d lines", story.displayTitle(), len(story.lines))
}

// forkStory starts a draft from story's lines up to at. A non-nil replacement
// swaps line at.
func (m *model) forkStory(story storyRecord, at int, replacement *string) {
	var opts []storytree.ForkOption
	if replacement != nil {
		opts = append(opts, storytree.WithReplacement(*replacement))
	}
	session, err := storytree.Fork(story.texts(), at, opts...)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	d := draftRecord{
		draftID:       newRecordID(),
		title:         storytree.RemixTitle(story.title),
		originStoryID: story.storyID,
		session:       session,
	}
	m.startDraft(d)
	if m.screen == screenAuthor {
		m.status = fmt.Sprintf("Forked %q at line %d", story.displayTitle(), at+1)
	}
}

// addAlternative stores a sibling story that shares story's lines before at.
func (m *model) addAlternative(story storyRecord, at int, text string) {
	var followUp []string
	prefix := append(story.texts()[:at:at], text)
	if next, ok := m.suggest.followUp(prefix); ok {
		followUp = append(followUp, next)
	}
	alt, err := storytree.Alternate(story.sequence(), at, text, newRecordID(), followUp...)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	rec := storyRecord{
		storyID:     alt.StoryID,
		rootStoryID: alt.RootStoryID,
		title:       alt.Title,
		tagline:     story.tagline,
	}
	for i, line := range alt.Sentences {
		manual := i == at
		if i < at {
			manual = story.lines[i].isManual
		}
		rec.lines = append(rec.lines, storyLine{text: line, isManual: manual})
	}
	m.watcher.markSelfWrite()
	if err := insertStory(context.Background(), m.db, rec); err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.logger.Info("added alternative",
		zap.String("source", story.storyID),
		zap.String("story", rec.storyID),
		zap.Int("line", at),
	)
	if err := m.reloadLibrary(); err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.openReader(rec.storyID)
	m.readerCursor = at
	m.status = fmt.Sprintf("Saved %q", rec.title)
}

// familySequences returns the library as sequences, plus the open draft when
// there is one.
func (m model) familySequences() []storytree.Sequence {
	seqs := sequencesOf(m.stories)
	if m.author == nil {
		return seqs
	}
	lines := m.author.draft.session.Lines()
	if len(lines) == 0 {
		return seqs
	}
	root := ""
	if origin, ok := m.findStory(m.author.draft.originStoryID); ok {
		root = origin.sequence().RootID()
	}
	return append(seqs, storytree.Sequence{
		StoryID:     draftStoryPrefix + m.author.draft.draftID,
		RootStoryID: root,
		Title:       m.author.draft.title,
		Sentences:   lines,
	})
}

func (m *model) openMap(storyID string, from screen) {
	m.mapReturn = from
	m.mapCursor = 0
	m.screen = screenMap
	m.mapStoryID = storyID
	m.rebuildMap()
	if m.mapLayout.Empty() {
		m.status = "Nothing to map yet"
		return
	}
	// Start on the deepest node of the current story.
	for i, n := range m.mapLayout.Nodes {
		if n.IsOnCurrentPath {
			m.mapCursor = i
		}
	}
	m.refreshMapViewport()
	m.status = fmt.Sprintf("%d decision points, %d branches", len(m.mapLayout.Nodes), m.branchCount())
}

func (m *model) rebuildMap() {
	m.mapLayout = m.layouts.Layout(m.familySequences(), m.mapStoryID, "")
	m.mapCursor = clamp(m.mapCursor, 0, len(m.mapLayout.Nodes)-1)
	m.refreshMapViewport()
}

func (m model) branchCount() int {
	n := 0
	for _, node := range m.mapLayout.Nodes {
		if node.IsLeaf {
			n++
		}
	}
	return n
}

func (m *model) startDraft(d draftRecord) {
	m.watcher.markSelfWrite()
	if err := saveDraft(context.Background(), m.db, d); err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.author = newAuthorState(d)
	m.author.refreshSuggestions(m.suggest, m.cfg.MinStoryLines)
	m.screen = screenAuthor
	m.logger.Debug("draft opened", zap.String("draft", d.draftID), zap.String("origin", d.originStoryID))
}

func (m *model) resumeLatestDraft() {
	ctx := context.Background()
	id, ok, err := latestDraftID(ctx, m.db)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	if !ok {
		m.status = "No drafts to resume"
		return
	}
	d, err := loadDraft(ctx, m.db, id)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.startDraft(d)
	m.status = fmt.Sprintf("Resumed draft with %d lines", len(d.session.Lines()))
}

func (m model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing storymap..."
	}

	header := m.renderHeader()
	body := m.renderBody()
	footer := helpStyle.Render(m.renderStatus())
	return header + "\n" + body + "\n" + footer
}

func (m model) renderHeader() string {
	title := "storymap"
	switch m.screen {
	case screenLibrary:
		title += " | Library"
	case screenReader:
		if story, ok := m.readerStory(); ok {
			title += " | " + story.displayTitle()
		}
	case screenMap:
		title += " | Story map"
		if m.mapReturn == screenAuthor {
			title += " | draft"
		}
	case screenAuthor:
		title += " | Writing"
		if m.author != nil && m.author.draft.title != "" {
			title += " | " + m.author.draft.title
		}
	}

	help := m.renderHelp()
	return titleStyle.Render(title) + "\n" + helpStyle.Render(help)
}

func (m model) renderHelp() string {
	switch m.screen {
	case screenLibrary:
		if m.filtering {
			return "type to filter | enter: keep filter | esc: clear"
		}
		return "up/down: move | enter: read | /: filter | m: map | n: new story | d: resume draft | r: reload | q: quit"
	case screenReader:
		if m.readerInput != readerInputNone {
			return "enter: save | esc: cancel"
		}
		return "up/down: move | f: fork here | e: fork with new line | a: add alternative | m: map | b: back | q: quit"
	case screenMap:
		return "up/down: move | left/right: parent/child | enter: open story | b: back | q: quit"
	case screenAuthor:
		if m.author != nil && m.author.typing {
			return "enter: add line | esc: cancel"
		}
		return "up/down: move | enter: choose | tab: suggestions/path | i: type a line | s: shuffle | m: map | b: back | q: quit"
	default:
		return "q: quit"
	}
}

func (m model) renderBody() string {
	switch m.screen {
	case screenLibrary:
		return m.renderLibrary()
	case screenReader:
		return m.renderReader()
	case screenMap:
		return m.renderMap()
	case screenAuthor:
		return m.renderAuthor()
	default:
		return "Unknown screen"
	}
}

func (m model) renderStatus() string {
	if m.screen != screenLibrary {
		return m.status
	}
	if m.status == "" {
		return fmt.Sprintf("showing %d of %d", len(m.visible), len(m.stories))
	}
	return fmt.Sprintf("showing %d of %d | %s", len(m.visible), len(m.stories), m.status)
}

func (m model) renderLibrary() string {
	var lines []string
	if m.filtering || m.filterInput.Value() != "" {
		lines = append(lines, m.filterInput.View())
	}
	if len(m.visible) == 0 {
		if len(m.stories) == 0 {
			return strings.Join(append(lines, "No stories yet. Press n to write one or run `storymap import`."), "\n")
		}
		return strings.Join(append(lines, "No stories match the filter"), "\n")
	}

	visible := max(1, m.height-4-len(lines))
	offset := listOffset(m.libraryCursor, len(m.visible), visible)
	for idx := offset; idx < min(len(m.visible), offset+visible); idx++ {
		story := m.stories[m.visible[idx]]
		family := ""
		if story.rootStoryID != "" {
			family = "  ↳ fork"
		}
		line := fmt.Sprintf("%s  %2d lines  %s%s",
			truncateDisplay(story.displayTitle(), 40),
			len(story.lines),
			formatTimestamp(story.createdAt),
			family,
		)
		if idx == m.libraryCursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m model) renderReader() string {
	story, ok := m.readerStory()
	if !ok {
		return "Story not found"
	}

	available := max(4, m.height-4)
	detailHeight := max(5, available/3)
	listHeight := max(3, available-detailHeight-1)

	offset := listOffset(m.readerCursor, len(story.lines), listHeight)
	listLines := make([]string, 0, listHeight)
	for idx := offset; idx < min(len(story.lines), offset+listHeight); idx++ {
		line := story.lines[idx]
		text := fmt.Sprintf("%3d  %s", idx+1, truncateDisplay(oneLine(line.text), max(8, m.width-8)))
		switch {
		case idx == m.readerCursor:
			text = selectedStyle.Render(text)
		case line.isManual:
			text = manualLineStyle.Render(text)
		}
		listLines = append(listLines, text)
	}

	detail := make([]string, 0, detailHeight)
	current := story.lines[m.readerCursor]
	origin := "suggested"
	if current.isManual {
		origin = "typed"
	}
	detail = append(detail, helpStyle.Render(fmt.Sprintf("line %d of %d | %s", m.readerCursor+1, len(story.lines), origin)))
	if story.tagline != "" {
		detail = append(detail, helpStyle.Render(oneLine(story.tagline)))
	}
	detail = append(detail, strings.Split(wrapText(current.text, max(20, m.width-4)), "\n")...)
	if m.readerInput != readerInputNone {
		detail = append(detail, "", m.lineInput.View())
	}
	if len(detail) > detailHeight {
		detail = detail[:detailHeight]
	}

	return strings.Join(padLines(listLines, listHeight), "\n") + "\n" + helpStyle.Render(strings.Repeat("-", max(20, m.width-1))) + "\n" + strings.Join(detail, "\n")
}

func (m model) renderMap() string {
	if m.mapLayout.Empty() {
		return "Nothing to map yet"
	}
	if m.mapViewport.Width <= 0 || m.mapViewport.Height <= 0 {
		return "Resizing story map..."
	}
	return m.mapViewport.View()
}

func (m *model) resizeViewport() {
	width := max(20, m.width-2)
	height := max(3, m.height-4)
	if m.mapViewport.Width == 0 {
		m.mapViewport = viewport.New(width, height)
		return
	}
	m.mapViewport.Width = width
	m.mapViewport.Height = height
}

// refreshMapViewport redraws the map and keeps the cursor node on screen.
func (m *model) refreshMapViewport() {
	if m.mapViewport.Width <= 0 || m.mapViewport.Height <= 0 || m.mapLayout.Empty() {
		return
	}
	cursor := m.mapLayout.Nodes[m.mapCursor].ID
	lines := renderStoryMap(m.mapLayout, mapRenderOptions{cursor: cursor, width: m.mapViewport.Width, styled: true})
	m.mapViewport.SetContent(strings.Join(lines, "\n"))

	target := mapLineFor(m.mapLayout, cursor)
	top := m.mapViewport.YOffset
	if target < top || target >= top+m.mapViewport.Height {
		m.mapViewport.SetYOffset(max(0, target-m.mapViewport.Height/2))
	}
}

func colorizeDiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return diffHeaderStyle.Render(line)
	case strings.HasPrefix(line, "@@"):
		return diffHunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return diffAddStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return diffRemStyle.Render(line)
	default:
		return line
	}
}

func wrapText(text string, width int) string {
	trimmed := strings.TrimSpace(displayText(text))
	if trimmed == "" {
		return ""
	}
	wrapped := wordwrap.String(trimmed, width)
	return strings.ReplaceAll(wrapped, "\r", "")
}

func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for idx := range lines {
		lines[idx] = prefix + lines[idx]
	}
	return strings.Join(lines, "\n")
}

func listOffset(cursor, total, visible int) int {
	if total <= visible {
		return 0
	}
	offset := cursor - visible/2
	maxOffset := total - visible
	return clamp(offset, 0, maxOffset)
}

func oneLine(text string) string {
	trimmed := strings.TrimSpace(displayText(text))
	if trimmed == "" {
		return ""
	}
	fields := strings.Fields(trimmed)
	return strings.Join(fields, " ")
}

func padLines(lines []string, minHeight int) []string {
	for len(lines) < minHeight {
		lines = append(lines, "")
	}
	return lines
}

func clamp(value, low, high int) int {
	if high < low {
		return low
	}
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// statusFor renders err for the status line, keeping sentinel causes short.
func statusFor(err error) string {
	switch {
	case errors.Is(err, errStoryTooShort):
		return "Not yet: " + err.Error()
	case errors.Is(err, storytree.ErrNodeNotFound):
		return "Error: that line is gone: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
