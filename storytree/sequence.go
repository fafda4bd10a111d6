package storytree

import (
	"fmt"
	"slices"
	"strings"
)

// Sequence is one completed story as the merge sees it: a flat list of
// sentences owned by StoryID. Stories forked from the same origin carry the
// origin's id in RootStoryID.
type Sequence struct {
	StoryID     string   `json:"storyId"`
	RootStoryID string   `json:"rootStoryId,omitempty"`
	Title       string   `json:"title"`
	Sentences   []string `json:"sentences"`
}

// RootID returns the family a story belongs to. Stories saved without a root
// id are the origin of their own family.
func (s Sequence) RootID() string {
	if s.RootStoryID != "" {
		return s.RootStoryID
	}
	return s.StoryID
}

// Related returns the members of storyID's family in their input order, or
// nil when storyID is not in all.
func Related(all []Sequence, storyID string) []Sequence {
	idx := slices.IndexFunc(all, func(s Sequence) bool { return s.StoryID == storyID })
	if idx < 0 {
		return nil
	}
	root := all[idx].RootID()
	var out []Sequence
	for _, s := range all {
		if s.RootID() == root {
			out = append(out, s)
		}
	}
	return out
}

const (
	// EndMarker is offered alongside suggestions once a story may end.
	EndMarker = "The End"
	// DefaultMinLines is the shortest story that may be ended.
	DefaultMinLines = 5

	untitled = "Untitled Story"
)

// IsEndMarker reports whether text asks to finish the story.
func IsEndMarker(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), EndMarker)
}

// CanEnd reports whether a path of pathLen sentences may be finished.
func CanEnd(pathLen, minLines int) bool {
	return pathLen >= minLines
}

// LinesUntilEnd returns how many more sentences are needed before CanEnd holds.
func LinesUntilEnd(pathLen, minLines int) int {
	return max(minLines-pathLen, 0)
}

// RemixTitle names an edit-mode fork of base.
func RemixTitle(base string) string {
	return orUntitled(base) + " (Remix)"
}

// AltTitle names a read-mode alternative of base.
func AltTitle(base string) string {
	return orUntitled(base) + " (Alt)"
}

func orUntitled(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return untitled
}

// Alternate builds the read-mode alternative of src that keeps its first at
// sentences, replaces sentence at with text, and optionally continues with
// followUp. The result joins src's family. at == len(src.Sentences) appends.
func Alternate(src Sequence, at int, text, newStoryID string, followUp ...string) (Sequence, error) {
	if at < 0 || at > len(src.Sentences) {
		return Sequence{}, fmt.Errorf("alternate at %d of %d lines: %w", at, len(src.Sentences), ErrForkIndex)
	}
	lines := make([]string, 0, at+1+len(followUp))
	lines = append(lines, src.Sentences[:at]...)
	lines = append(lines, text)
	for _, f := range followUp {
		if f = strings.TrimSpace(f); f != "" && !IsEndMarker(f) {
			lines = append(lines, f)
		}
	}
	return Sequence{
		StoryID:     newStoryID,
		RootStoryID: src.RootID(),
		Title:       AltTitle(src.Title),
		Sentences:   lines,
	}, nil
}
