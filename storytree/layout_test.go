package storytree

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byText(t *testing.T, l Layout) map[string]DisplayNode {
	t.Helper()
	out := make(map[string]DisplayNode, len(l.Nodes))
	for _, n := range l.Nodes {
		key := n.Text
		if n.IsRoot {
			key = "<root>"
		}
		_, dup := out[key]
		require.False(t, dup, "duplicate display text %q", key)
		out[key] = n
	}
	return out
}

func TestBuildMergeLayoutBranchAfterSharedPrefix(t *testing.T) {
	t.Parallel()
	seqs := []Sequence{
		{StoryID: "s1", Title: "The Fox", Sentences: []string{"A", "B", "C"}},
		{StoryID: "s2", RootStoryID: "s1", Title: "The Fox (Remix)", Sentences: []string{"A", "B", "D"}},
	}

	trie := BuildTrie(seqs)
	assert.Equal(t, 5, trie.Len())
	b, ok := trie.Lookup("A", "B")
	require.True(t, ok)
	assert.Len(t, b.ChildIDs, 2)

	l := BuildMergeLayout(seqs, "s1", "")
	require.Len(t, l.Nodes, 4)
	nodes := byText(t, l)

	root := nodes["<root>"]
	assert.Equal(t, RootNodeID, root.ID)
	assert.Equal(t, 0, root.Row)
	assert.Equal(t, 0, root.Column)

	branch := nodes["B"]
	assert.True(t, branch.IsBranching)
	assert.Equal(t, 1, branch.Row)
	assert.Equal(t, 0, branch.Column)

	c, d := nodes["C"], nodes["D"]
	assert.True(t, c.IsLeaf)
	assert.True(t, d.IsLeaf)
	assert.Equal(t, 2, c.Row)
	assert.Equal(t, 2, d.Row)
	assert.Equal(t, 0, c.Column)
	assert.Equal(t, 1, d.Column)

	assert.Equal(t, []DisplayEdge{
		{From: root.ID, To: branch.ID, Kind: EdgeStraight},
		{From: branch.ID, To: c.ID, Kind: EdgeStraight},
		{From: branch.ID, To: d.ID, Kind: EdgeCurved},
	}, l.Edges)

	assert.True(t, root.IsOnCurrentPath)
	assert.True(t, c.IsOnCurrentPath)
	assert.False(t, d.IsOnCurrentPath)
	assert.Equal(t, "The Fox", c.Label)
	assert.Empty(t, d.Label)
	assert.Equal(t, []string{"s2"}, d.EndingStoryIDs)

	assert.Equal(t, 300, l.Width)
	assert.Equal(t, 400, l.Height)
}

func TestBuildMergeLayoutSingleChainCompresses(t *testing.T) {
	t.Parallel()
	l := BuildMergeLayout([]Sequence{{StoryID: "s1", Title: "Solo", Sentences: []string{"A", "B", "C"}}}, "s1", "s1")

	require.Len(t, l.Nodes, 2)
	require.Len(t, l.Edges, 1)
	leaf := l.Nodes[1]
	assert.Equal(t, "C", leaf.Text)
	assert.Equal(t, 1, leaf.Row)
	assert.Equal(t, EdgeStraight, l.Edges[0].Kind)
	assert.Equal(t, "Solo", leaf.Label)
}

func TestBuildMergeLayoutDegenerateInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		seqs    []Sequence
		current string
	}{
		{name: "no sequences", current: "s1"},
		{name: "unknown story", seqs: []Sequence{{StoryID: "s1", Sentences: []string{"A"}}}, current: "s9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l := BuildMergeLayout(tc.seqs, tc.current, "")
			assert.True(t, l.Empty())
			assert.Empty(t, l.Edges)
			assert.Zero(t, l.Width)
			assert.Zero(t, l.Height)

			data, err := json.Marshal(l)
			require.NoError(t, err)
			assert.JSONEq(t, `{"nodes":[],"edges":[],"width":0,"height":0}`, string(data))
		})
	}
}

func TestBuildMergeLayoutKeepsOnlyTheFamily(t *testing.T) {
	t.Parallel()
	seqs := []Sequence{
		{StoryID: "s1", Sentences: []string{"A", "B"}},
		{StoryID: "s2", RootStoryID: "s1", Sentences: []string{"A", "C"}},
		{StoryID: "other", Sentences: []string{"A", "Z"}},
	}
	l := BuildMergeLayout(seqs, "s2", "")

	for _, n := range l.Nodes {
		assert.NotContains(t, n.OwnerStoryIDs, "other")
		assert.NotEqual(t, "Z", n.Text)
	}
	root, ok := l.Node(RootNodeID)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"s1", "s2"}, root.OwnerStoryIDs)
}

func TestBuildMergeLayoutHighlightLabel(t *testing.T) {
	t.Parallel()
	seqs := []Sequence{
		{StoryID: "s1", Title: "One", Sentences: []string{"A", "B"}},
		{StoryID: "s2", RootStoryID: "s1", Title: "Two", Sentences: []string{"A", "C"}},
	}
	l := BuildMergeLayout(seqs, "s1", "s2")
	nodes := byText(t, l)

	assert.Empty(t, nodes["B"].Label)
	assert.Equal(t, "Two", nodes["C"].Label)
	assert.True(t, nodes["B"].IsOnCurrentPath)
	assert.False(t, nodes["C"].IsOnCurrentPath)
}

func TestBuildMergeLayoutHidesStoryEndingInsideChain(t *testing.T) {
	t.Parallel()
	seqs := []Sequence{
		{StoryID: "short", Sentences: []string{"A", "B"}},
		{StoryID: "long", RootStoryID: "short", Sentences: []string{"A", "B", "C"}},
	}
	l := BuildMergeLayout(seqs, "short", "")

	require.Len(t, l.Nodes, 2)
	assert.Equal(t, "C", l.Nodes[1].Text)
	assert.Equal(t, []string{"long"}, l.Nodes[1].EndingStoryIDs)
	assert.Empty(t, l.Nodes[1].Label)
}

func TestBuildMergeLayoutIDsSurviveRebuild(t *testing.T) {
	t.Parallel()
	one := []Sequence{{StoryID: "s1", Sentences: []string{"A", "B", "C"}}}
	two := append([]Sequence{}, one...)
	two = append(two, Sequence{StoryID: "s2", RootStoryID: "s1", Sentences: []string{"A", "X"}})

	before := byText(t, BuildMergeLayout(one, "s1", ""))
	after := byText(t, BuildMergeLayout(two, "s1", ""))
	assert.Equal(t, before["C"].ID, after["C"].ID)
}

func TestBuildMergeLayoutIsOrderIndependent(t *testing.T) {
	t.Parallel()
	seqs := familyFixture()
	reversed := make([]Sequence, len(seqs))
	for i, s := range seqs {
		reversed[len(seqs)-1-i] = s
	}

	shape := func(l Layout) map[string][]string {
		out := make(map[string][]string, len(l.Nodes))
		for _, n := range l.Nodes {
			owners := append([]string(nil), n.OwnerStoryIDs...)
			sort.Strings(owners)
			out[n.ID] = owners
		}
		return out
	}
	edges := func(l Layout) []string {
		out := make([]string, 0, len(l.Edges))
		for _, e := range l.Edges {
			out = append(out, e.From+">"+e.To)
		}
		sort.Strings(out)
		return out
	}

	a := BuildMergeLayout(seqs, "s1", "")
	b := BuildMergeLayout(reversed, "s1", "")
	assert.Equal(t, shape(a), shape(b))
	assert.Equal(t, edges(a), edges(b))
}

func TestBuildMergeLayoutInvariants(t *testing.T) {
	t.Parallel()
	seqs := familyFixture()
	trie := BuildTrie(Related(seqs, "s1"))
	l := BuildMergeLayout(seqs, "s1", "")
	require.False(t, l.Empty())

	cells := make(map[[2]int]string)
	for _, n := range l.Nodes {
		raw, ok := trie.Node(n.ID)
		require.True(t, ok)
		assert.True(t, n.IsRoot || len(raw.ChildIDs) != 1, "node %s should have been compressed", n.ID)

		cell := [2]int{n.Row, n.Column}
		other, taken := cells[cell]
		assert.False(t, taken, "nodes %s and %s share row %d column %d", n.ID, other, n.Row, n.Column)
		cells[cell] = n.ID
	}
	for _, e := range l.Edges {
		from, ok := l.Node(e.From)
		require.True(t, ok)
		to, ok := l.Node(e.To)
		require.True(t, ok)
		assert.Equal(t, from.Column != to.Column, e.Kind == EdgeCurved, "edge %s>%s", e.From, e.To)
		assert.Less(t, from.Row, to.Row)
	}
}

func TestBuildMergeLayoutColumnsGrowGlobally(t *testing.T) {
	t.Parallel()
	// Two branch points: after "A" and after "A","B". The nested branch is
	// visited first and takes column 1, so the later sibling of "B" takes 2.
	seqs := []Sequence{
		{StoryID: "s1", Sentences: []string{"A", "B", "C"}},
		{StoryID: "s2", RootStoryID: "s1", Sentences: []string{"A", "B", "D"}},
		{StoryID: "s3", RootStoryID: "s1", Sentences: []string{"A", "E"}},
	}
	nodes := byText(t, BuildMergeLayout(seqs, "s1", ""))

	assert.Equal(t, 0, nodes["A"].Column)
	assert.Equal(t, 0, nodes["C"].Column)
	assert.Equal(t, 1, nodes["D"].Column)
	assert.Equal(t, 2, nodes["E"].Column)
	assert.Equal(t, 1, nodes["A"].Row)
	assert.Equal(t, 2, nodes["B"].Row)
	assert.Equal(t, 2, nodes["E"].Row)
}

func TestBuildMergeLayoutDeepStoryDoesNotRecurse(t *testing.T) {
	t.Parallel()
	lines := make([]string, 50000)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	l := BuildMergeLayout([]Sequence{{StoryID: "deep", Sentences: lines}}, "deep", "")
	require.Len(t, l.Nodes, 2)
}

func TestLayoutSelectStoryAndNavigation(t *testing.T) {
	t.Parallel()
	l := BuildMergeLayout(familyFixture(), "s1", "")

	story, ok := l.SelectStory(RootNodeID)
	require.True(t, ok)
	assert.Equal(t, "s1", story)

	children := l.Children(RootNodeID)
	require.NotEmpty(t, children)
	parent, ok := l.Parent(children[0].ID)
	require.True(t, ok)
	assert.Equal(t, RootNodeID, parent.ID)

	_, ok = l.SelectStory("missing")
	assert.False(t, ok)
}

func TestLayoutJSONUsesEdgeKindNames(t *testing.T) {
	t.Parallel()
	l := BuildMergeLayout(familyFixture(), "s1", "")
	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"curved"`)

	var decoded Layout
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, l.Edges, decoded.Edges)
	n, ok := decoded.Node(RootNodeID)
	require.True(t, ok)
	assert.True(t, n.IsRoot)
}

func TestLayoutCacheReusesUnchangedInput(t *testing.T) {
	t.Parallel()
	cache := NewLayoutCache(DefaultGeometry)
	seqs := familyFixture()

	first := cache.Layout(seqs, "s1", "")
	second := cache.Layout(seqs, "s1", "")
	assert.Equal(t, 1, cache.Builds())
	assert.Equal(t, first.Nodes, second.Nodes)

	cache.Layout(seqs, "s2", "")
	assert.Equal(t, 2, cache.Builds())

	changed := append([]Sequence{}, seqs...)
	changed[0].Sentences = append([]string{}, changed[0].Sentences...)
	changed[0].Sentences[0] = "a"
	cache.Layout(changed, "s2", "")
	assert.Equal(t, 3, cache.Builds())
}

func TestLayoutCacheHandsOutCopies(t *testing.T) {
	t.Parallel()
	cache := NewLayoutCache(DefaultGeometry)
	seqs := familyFixture()

	first := cache.Layout(seqs, "s1", "")
	require.Greater(t, len(first.Nodes), 1)
	require.NotEmpty(t, first.Edges)
	want := first.Nodes[1].Text
	wantOwner := first.Nodes[0].OwnerStoryIDs[0]
	wantTo := first.Edges[0].To
	first.Nodes[1].Text = "scribbled"
	first.Nodes[0].OwnerStoryIDs[0] = "scribbled"
	first.Edges[0].To = "scribbled"

	second := cache.Layout(seqs, "s1", "")
	assert.Equal(t, 1, cache.Builds())
	assert.Equal(t, want, second.Nodes[1].Text)
	assert.Equal(t, wantOwner, second.Nodes[0].OwnerStoryIDs[0])
	assert.Equal(t, wantTo, second.Edges[0].To)
}

func TestDigestSeparatesFields(t *testing.T) {
	t.Parallel()
	a := DigestSequences([]Sequence{{StoryID: "s", Sentences: []string{"ab", "c"}}}, "s", "", DefaultGeometry)
	b := DigestSequences([]Sequence{{StoryID: "s", Sentences: []string{"a", "bc"}}}, "s", "", DefaultGeometry)
	assert.NotEqual(t, a, b)
}

func familyFixture() []Sequence {
	return []Sequence{
		{StoryID: "s1", Title: "Moon", Sentences: []string{"A", "B", "C", "D"}},
		{StoryID: "s2", RootStoryID: "s1", Title: "Moon (Remix)", Sentences: []string{"A", "B", "X"}},
		{StoryID: "s3", RootStoryID: "s1", Title: "Moon (Alt)", Sentences: []string{"A", "Y", "Z"}},
		{StoryID: "s4", RootStoryID: "s1", Title: "Moon (Alt) (Alt)", Sentences: []string{"A", "Y", "W", "V"}},
		{StoryID: "s5", RootStoryID: "s1", Title: "Other start", Sentences: []string{"Q"}},
	}
}
