package storytree

import (
	"fmt"
	"slices"
)

// EdgeKind tells a renderer whether an edge stays in its column.
type EdgeKind int

const (
	EdgeStraight EdgeKind = iota
	EdgeCurved
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeStraight:
		return "straight"
	case EdgeCurved:
		return "curved"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EdgeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "straight":
		*k = EdgeStraight
	case "curved":
		*k = EdgeCurved
	default:
		return fmt.Errorf("unknown edge kind %q", b)
	}
	return nil
}

// DisplayNode is a visible decision point: the start, a branch or a story end.
// Row counts visible ancestors, not sentences.
type DisplayNode struct {
	ID              string   `json:"id"`
	Text            string   `json:"text,omitempty"`
	Row             int      `json:"row"`
	Column          int      `json:"column"`
	OwnerStoryIDs   []string `json:"ownerStoryIds"`
	EndingStoryIDs  []string `json:"endingStoryIds,omitempty"`
	IsRoot          bool     `json:"isRoot"`
	IsBranching     bool     `json:"isBranching"`
	IsLeaf          bool     `json:"isLeaf"`
	IsOnCurrentPath bool     `json:"isOnCurrentPath"`
	Label           string   `json:"label,omitempty"`
}

// DisplayEdge joins two display nodes. Any sentences between them are hidden.
type DisplayEdge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Layout is a ready-to-draw story map. Width and Height are in the units of
// the Geometry it was built with; an empty layout has zero size.
type Layout struct {
	Nodes  []DisplayNode `json:"nodes"`
	Edges  []DisplayEdge `json:"edges"`
	Width  int           `json:"width"`
	Height int           `json:"height"`

	index map[string]int
}

// Empty reports whether there is nothing to draw.
func (l Layout) Empty() bool {
	return len(l.Nodes) == 0
}

// clone copies the nodes and edges so the receiver can be handed out again.
// The id index is never written after construction and stays shared.
func (l Layout) clone() Layout {
	out := l
	out.Nodes = slices.Clone(l.Nodes)
	for i := range out.Nodes {
		out.Nodes[i].OwnerStoryIDs = slices.Clone(out.Nodes[i].OwnerStoryIDs)
		out.Nodes[i].EndingStoryIDs = slices.Clone(out.Nodes[i].EndingStoryIDs)
	}
	out.Edges = slices.Clone(l.Edges)
	return out
}

// Node returns the display node with id.
func (l Layout) Node(id string) (DisplayNode, bool) {
	if l.index != nil {
		i, ok := l.index[id]
		if !ok {
			return DisplayNode{}, false
		}
		return l.Nodes[i], true
	}
	i := slices.IndexFunc(l.Nodes, func(n DisplayNode) bool { return n.ID == id })
	if i < 0 {
		return DisplayNode{}, false
	}
	return l.Nodes[i], true
}

// Children returns the display children of id in emission order.
func (l Layout) Children(id string) []DisplayNode {
	var out []DisplayNode
	for _, e := range l.Edges {
		if e.From != id {
			continue
		}
		if n, ok := l.Node(e.To); ok {
			out = append(out, n)
		}
	}
	return out
}

// Parent returns the display parent of id.
func (l Layout) Parent(id string) (DisplayNode, bool) {
	for _, e := range l.Edges {
		if e.To == id {
			return l.Node(e.From)
		}
	}
	return DisplayNode{}, false
}

// SelectStory returns the story to open when node id is picked: its first
// owner.
func (l Layout) SelectStory(id string) (string, bool) {
	n, ok := l.Node(id)
	if !ok || len(n.OwnerStoryIDs) == 0 {
		return "", false
	}
	return n.OwnerStoryIDs[0], true
}

// Geometry converts grid positions into canvas size.
type Geometry struct {
	ColumnGap int `yaml:"column_gap" json:"columnGap"`
	RowGap    int `yaml:"row_gap" json:"rowGap"`
	Padding   int `yaml:"padding" json:"padding"`
	MinWidth  int `yaml:"min_width" json:"minWidth"`
	MinHeight int `yaml:"min_height" json:"minHeight"`
}

// DefaultGeometry leaves room for labels to the right of the widest column.
var DefaultGeometry = Geometry{
	ColumnGap: 50,
	RowGap:    80,
	Padding:   60,
	MinWidth:  300,
	MinHeight: 400,
}

// Size returns the canvas size for a grid whose largest column and row are
// maxColumn and maxRow.
func (g Geometry) Size(maxColumn, maxRow int) (width, height int) {
	width = max(g.MinWidth, maxColumn*g.ColumnGap+g.Padding*4)
	height = max(g.MinHeight, maxRow*g.RowGap+g.Padding)
	return width, height
}

type layoutConfig struct {
	geometry Geometry
}

// LayoutOption configures BuildMergeLayout.
type LayoutOption func(*layoutConfig)

// WithGeometry overrides DefaultGeometry.
func WithGeometry(g Geometry) LayoutOption {
	return func(c *layoutConfig) {
		c.geometry = g
	}
}

// BuildMergeLayout merges the family of currentStoryID out of seqs and lays
// it out. Nodes owned by currentStoryID are marked on the current path; the
// leaf that ends highlightStoryID (currentStoryID when empty) carries its
// title. An unknown currentStoryID yields an empty layout.
func BuildMergeLayout(seqs []Sequence, currentStoryID, highlightStoryID string, opts ...LayoutOption) Layout {
	cfg := layoutConfig{geometry: DefaultGeometry}
	for _, opt := range opts {
		opt(&cfg)
	}

	family := Related(seqs, currentStoryID)
	if len(family) == 0 {
		return Layout{Nodes: []DisplayNode{}, Edges: []DisplayEdge{}}
	}
	if highlightStoryID == "" {
		highlightStoryID = currentStoryID
	}
	highlightTitle := ""
	for _, s := range family {
		if s.StoryID == highlightStoryID {
			highlightTitle = orUntitled(s.Title)
			break
		}
	}

	t := BuildTrie(family)
	cols := assignColumns(t)
	l := compress(t, cols, currentStoryID, highlightStoryID, highlightTitle)

	maxCol, maxRow := 0, 0
	for _, n := range l.Nodes {
		maxCol = max(maxCol, n.Column)
		maxRow = max(maxRow, n.Row)
	}
	l.Width, l.Height = cfg.geometry.Size(maxCol, maxRow)
	return l
}

// columnAssigner walks the raw trie. A first child keeps its parent's column;
// every later sibling opens a column one past the highest used so far.
type columnAssigner struct {
	cols    []int
	highest int
}

type columnFrame struct {
	node    int
	column  int
	opensUp bool
}

func assignColumns(t *Trie) []int {
	a := columnAssigner{cols: make([]int, len(t.nodes))}
	stack := []columnFrame{{node: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		col := f.column
		if f.opensUp {
			// Siblings are popped after the subtrees before them finish.
			col = a.highest + 1
		}
		a.cols[f.node] = col
		a.highest = max(a.highest, col)

		children := t.nodes[f.node].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, columnFrame{node: children[i], column: col, opensUp: i > 0})
		}
	}
	return a.cols
}

type compressFrame struct {
	node   int
	parent int
	row    int
}

// compress emits display nodes in preorder. Rows advance only when a node is
// emitted.
func compress(t *Trie, cols []int, currentStoryID, highlightStoryID, highlightTitle string) Layout {
	l := Layout{Nodes: []DisplayNode{}, Edges: []DisplayEdge{}, index: make(map[string]int)}
	stack := []compressFrame{{node: 0, parent: -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		raw := t.nodes[f.node]
		parent, row := f.parent, f.row
		if t.important(f.node) {
			dn := DisplayNode{
				ID:              raw.id,
				Text:            raw.text,
				Row:             f.row,
				Column:          cols[f.node],
				OwnerStoryIDs:   slices.Clone(raw.owners),
				EndingStoryIDs:  slices.Clone(raw.endings),
				IsRoot:          f.node == 0,
				IsBranching:     len(raw.children) > 1,
				IsLeaf:          len(raw.children) == 0,
				IsOnCurrentPath: slices.Contains(raw.owners, currentStoryID),
			}
			if dn.IsLeaf && slices.Contains(raw.endings, highlightStoryID) {
				dn.Label = highlightTitle
			}
			idx := len(l.Nodes)
			l.index[dn.ID] = idx
			l.Nodes = append(l.Nodes, dn)
			if f.parent >= 0 {
				from := l.Nodes[f.parent]
				kind := EdgeStraight
				if from.Column != dn.Column {
					kind = EdgeCurved
				}
				l.Edges = append(l.Edges, DisplayEdge{From: from.ID, To: dn.ID, Kind: kind})
			}
			parent, row = idx, f.row+1
		}

		for i := len(raw.children) - 1; i >= 0; i-- {
			stack = append(stack, compressFrame{node: raw.children[i], parent: parent, row: row})
		}
	}
	return l
}
