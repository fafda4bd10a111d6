package storytree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceRootIDFallsBackToStory(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "s1", Sequence{StoryID: "s1"}.RootID())
	assert.Equal(t, "origin", Sequence{StoryID: "s1", RootStoryID: "origin"}.RootID())
}

func TestRelatedUnknownStory(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Related([]Sequence{{StoryID: "a"}}, "b"))
}

func TestCanEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pathLen  int
		minLines int
		want     bool
		left     int
	}{
		{pathLen: 0, minLines: 5, want: false, left: 5},
		{pathLen: 4, minLines: 5, want: false, left: 1},
		{pathLen: 5, minLines: 5, want: true, left: 0},
		{pathLen: 9, minLines: 5, want: true, left: 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanEnd(tc.pathLen, tc.minLines), "CanEnd(%d, %d)", tc.pathLen, tc.minLines)
		assert.Equal(t, tc.left, LinesUntilEnd(tc.pathLen, tc.minLines))
	}
}

func TestIsEndMarker(t *testing.T) {
	t.Parallel()
	assert.True(t, IsEndMarker("The End"))
	assert.True(t, IsEndMarker("  the end "))
	assert.False(t, IsEndMarker("The End of the road."))
}

func TestTitles(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Moon (Remix)", RemixTitle("Moon"))
	assert.Equal(t, "Untitled Story (Alt)", AltTitle("  "))
}

func TestAlternate(t *testing.T) {
	t.Parallel()
	src := Sequence{StoryID: "s1", Title: "Moon", Sentences: []string{"A", "B", "C"}}

	alt, err := Alternate(src, 1, "X", "s9", "Y", "The End", " ")
	require.NoError(t, err)
	assert.Equal(t, Sequence{
		StoryID:     "s9",
		RootStoryID: "s1",
		Title:       "Moon (Alt)",
		Sentences:   []string{"A", "X", "Y"},
	}, alt)
	assert.Equal(t, []string{"A", "B", "C"}, src.Sentences)

	l := BuildMergeLayout([]Sequence{src, alt}, "s9", "")
	root, ok := l.Node(RootNodeID)
	require.True(t, ok)
	assert.Equal(t, []string{"s1", "s9"}, root.OwnerStoryIDs)

	_, err = Alternate(src, 4, "X", "s9")
	assert.ErrorIs(t, err, ErrForkIndex)
}
