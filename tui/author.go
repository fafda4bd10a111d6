package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/onurmatik/taletinker/storytree"
)

type authorFocus int

const (
	focusSuggestions authorFocus = iota
	focusPath
)

// authorState is the open draft on the writing screen.
type authorState struct {
	draft            draftRecord
	suggestions      []string
	suggestionCursor int
	pathCursor       int
	focus            authorFocus
	typing           bool
	input            textinput.Model
}

func newAuthorState(d draftRecord) *authorState {
	input := textinput.New()
	input.Placeholder = "write the next line"
	input.CharLimit = 400
	input.Prompt = "> "
	a := &authorState{draft: d, input: input}
	a.pathCursor = max(0, len(d.session.CurrentPath())-1)
	return a
}

// pathLen is the length of the path being written; an empty draft has none.
func (a *authorState) pathLen() int {
	n, err := a.draft.session.HeadPathLen()
	if err != nil {
		return 0
	}
	return n
}

func (a *authorState) canEnd(minLines int) bool {
	return storytree.CanEnd(a.pathLen(), minLines)
}

func (a *authorState) refreshSuggestions(s *suggester, minLines int) {
	a.suggestions = s.next(a.draft.session.Lines(), a.canEnd(minLines))
	a.suggestionCursor = 0
}

func (a *authorState) startTyping() {
	a.typing = true
	a.input.SetValue("")
	a.input.Focus()
}

func (a *authorState) stopTyping() {
	a.typing = false
	a.input.Blur()
	a.input.SetValue("")
}

// isManual reports whether text was typed rather than picked from the
// suggestions on offer.
func (a *authorState) isManual(text string) bool {
	return !slices.Contains(a.suggestions, text)
}

func (m model) handleAuthorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := m.author
	if a == nil {
		m.screen = screenLibrary
		return m, nil
	}

	if a.typing {
		switch msg.String() {
		case "esc":
			a.stopTyping()
			m.status = "Cancelled"
			return m, nil
		case "enter":
			text := strings.TrimSpace(a.input.Value())
			if text == "" {
				m.status = "Type a sentence first"
				return m, nil
			}
			a.stopTyping()
			m.submitLine(text)
			return m, nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return m, cmd
	}

	path := a.draft.session.CurrentPath()
	switch msg.String() {
	case "tab":
		if a.focus == focusSuggestions && len(path) > 0 {
			a.focus = focusPath
			a.pathCursor = len(path) - 1
		} else {
			a.focus = focusSuggestions
		}
	case "up", "k":
		if a.focus == focusPath {
			a.pathCursor = clamp(a.pathCursor-1, 0, len(path)-1)
		} else {
			a.suggestionCursor = clamp(a.suggestionCursor-1, 0, len(a.suggestions)-1)
		}
	case "down", "j":
		if a.focus == focusPath {
			a.pathCursor = clamp(a.pathCursor+1, 0, len(path)-1)
		} else {
			a.suggestionCursor = clamp(a.suggestionCursor+1, 0, len(a.suggestions)-1)
		}
	case "enter":
		if a.focus == focusPath {
			m.branchTo(a.pathCursor)
			return m, nil
		}
		if len(a.suggestions) == 0 {
			m.status = "No suggestions left, press i to write a line"
			return m, nil
		}
		m.submitLine(a.suggestions[a.suggestionCursor])
	case "i":
		a.startTyping()
		return m, textinput.Blink
	case "s":
		a.refreshSuggestions(m.suggest, m.cfg.MinStoryLines)
		m.status = "New suggestions"
	case "m":
		m.openMap(draftStoryPrefix+a.draft.draftID, screenAuthor)
	case "b", "backspace", "esc":
		m.screen = screenLibrary
		m.status = "Draft saved. Press d to resume."
	}
	return m, nil
}

// submitLine appends text at the head, or finishes the story when text is the
// end marker.
func (m *model) submitLine(text string) {
	a := m.author
	if storytree.IsEndMarker(text) {
		m.finishDraft()
		return
	}
	if _, err := a.draft.session.Append(text, a.isManual(text)); err != nil {
		m.status = statusFor(err)
		return
	}
	if !m.saveAuthorDraft() {
		return
	}
	a.refreshSuggestions(m.suggest, m.cfg.MinStoryLines)
	a.focus = focusSuggestions
	a.pathCursor = a.pathLen() - 1
	if left := storytree.LinesUntilEnd(a.pathLen(), m.cfg.MinStoryLines); left > 0 {
		m.status = fmt.Sprintf("%d more lines before the story can end", left)
	} else {
		m.status = "The story can end whenever you like"
	}
}

// branchTo moves the head back to path line idx. Lines after it stay in the
// draft as an abandoned branch.
func (m *model) branchTo(idx int) {
	a := m.author
	path := a.draft.session.CurrentPath()
	if idx < 0 || idx >= len(path) {
		return
	}
	if err := a.draft.session.SetHead(path[idx].ID); err != nil {
		m.status = statusFor(err)
		return
	}
	if !m.saveAuthorDraft() {
		return
	}
	a.refreshSuggestions(m.suggest, m.cfg.MinStoryLines)
	a.focus = focusSuggestions
	a.pathCursor = idx
	m.status = fmt.Sprintf("Continuing from line %d", idx+1)
}

func (m *model) saveAuthorDraft() bool {
	d := m.author.draft
	d.updatedAt = ""
	m.watcher.markSelfWrite()
	if err := saveDraft(context.Background(), m.db, d); err != nil {
		m.status = "Error: " + err.Error()
		m.logger.Error("autosave failed", zap.String("draft", d.draftID), zap.Error(err))
		return false
	}
	return true
}

func (m *model) finishDraft() {
	a := m.author
	n, err := a.draft.session.HeadPathLen()
	if errors.Is(err, storytree.ErrEmptySession) {
		m.status = "Nothing written yet"
		return
	}
	if !storytree.CanEnd(n, m.cfg.MinStoryLines) {
		m.status = fmt.Sprintf("Not yet: %d more lines before the story can end", storytree.LinesUntilEnd(n, m.cfg.MinStoryLines))
		return
	}
	if !m.saveAuthorDraft() {
		return
	}

	ctx := context.Background()
	plan, err := buildFinishPlan(ctx, m.db, finishOptions{draftID: a.draft.draftID}, m.cfg.MinStoryLines)
	if err != nil {
		m.status = statusFor(err)
		return
	}
	m.watcher.markSelfWrite()
	if err := applyFinishPlan(ctx, m.db, plan); err != nil {
		m.status = statusFor(err)
		return
	}
	m.logger.Info("finished draft", zap.String("draft", a.draft.draftID), zap.String("story", plan.story.storyID))

	m.author = nil
	if err := m.reloadLibrary(); err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.openReader(plan.story.storyID)
	m.status = fmt.Sprintf("Finished %q with %d lines", plan.story.displayTitle(), len(plan.story.lines))
}

func (m model) renderAuthor() string {
	a := m.author
	if a == nil {
		return "No draft open"
	}

	available := max(6, m.height-4)
	suggestHeight := len(a.suggestions) + 2
	if a.typing {
		suggestHeight++
	}
	pathHeight := max(3, available-suggestHeight-1)

	path := a.draft.session.CurrentPath()
	pathLines := make([]string, 0, pathHeight)
	if len(path) == 0 {
		pathLines = append(pathLines, helpStyle.Render("Pick an opening line or press i to write your own."))
	}
	cursor := len(path) - 1
	if a.focus == focusPath {
		cursor = a.pathCursor
	}
	offset := listOffset(cursor, len(path), pathHeight)
	for idx := offset; idx < min(len(path), offset+pathHeight); idx++ {
		node := path[idx]
		branches := ""
		if children, err := a.draft.session.Children(node.ID); err == nil && len(children) > 1 {
			branches = fmt.Sprintf("  (+%d)", len(children)-1)
		}
		line := fmt.Sprintf("%3d  %s%s", idx+1, truncateDisplay(oneLine(node.Text), max(8, m.width-16)), branches)
		switch {
		case a.focus == focusPath && idx == a.pathCursor:
			line = selectedStyle.Render(line)
		case node.IsManual:
			line = manualLineStyle.Render(line)
		}
		pathLines = append(pathLines, line)
	}

	var bottom []string
	left := storytree.LinesUntilEnd(a.pathLen(), m.cfg.MinStoryLines)
	if left > 0 {
		bottom = append(bottom, helpStyle.Render(fmt.Sprintf("Next line (%d more before the end):", left)))
	} else {
		bottom = append(bottom, helpStyle.Render("Next line:"))
	}
	for idx, s := range a.suggestions {
		text := truncateDisplay(oneLine(s), max(8, m.width-4))
		switch {
		case a.focus == focusSuggestions && idx == a.suggestionCursor:
			text = selectedStyle.Render("> " + text)
		case storytree.IsEndMarker(s):
			text = "  " + endMarkerStyle.Render(text)
		default:
			text = indentLines(text, "  ")
		}
		bottom = append(bottom, text)
	}
	if a.typing {
		bottom = append(bottom, a.input.View())
	}

	return strings.Join(padLines(pathLines, pathHeight), "\n") + "\n" + helpStyle.Render(strings.Repeat("-", max(20, m.width-1))) + "\n" + strings.Join(bottom, "\n")
}
