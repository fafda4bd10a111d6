package main

import (
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/onurmatik/taletinker/storytree"
)

// Each layout column is two terminal cells wide: the glyph and a gap.
const mapCellWidth = 2

type mapRenderOptions struct {
	cursor string // node id drawn as selected
	width  int
	styled bool
}

// renderStoryMap draws l as a terminal graph. Node rows alternate with
// connector rows, so the node on layout row r is output line 2r. Text for the
// nodes on a row follows the graph, leftmost column first.
func renderStoryMap(l storytree.Layout, opts mapRenderOptions) []string {
	if l.Empty() {
		return []string{"(empty story map)"}
	}

	maxCol, maxRow := 0, 0
	byRow := make(map[int][]storytree.DisplayNode)
	for _, n := range l.Nodes {
		maxCol = max(maxCol, n.Column)
		maxRow = max(maxRow, n.Row)
		byRow[n.Row] = append(byRow[n.Row], n)
	}
	gridWidth := (maxCol + 1) * mapCellWidth
	connectors := buildConnectorRows(l, maxRow, gridWidth)

	lines := make([]string, 0, maxRow*2+1)
	for row := 0; row <= maxRow; row++ {
		nodes := byRow[row]
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Column < nodes[j].Column })
		lines = append(lines, renderMapNodeRow(nodes, gridWidth, opts))
		if row < maxRow {
			lines = append(lines, "  "+strings.TrimRight(string(connectors[row]), " "))
		}
	}
	return lines
}

// mapLineFor returns the output line index of node id.
func mapLineFor(l storytree.Layout, id string) int {
	n, ok := l.Node(id)
	if !ok {
		return 0
	}
	return n.Row * 2
}

func renderMapNodeRow(nodes []storytree.DisplayNode, gridWidth int, opts mapRenderOptions) string {
	cells := []rune(strings.Repeat(" ", gridWidth))
	selected := false
	var texts []string
	for _, n := range nodes {
		cells[n.Column*mapCellWidth] = mapGlyph(n)
		if n.ID == opts.cursor {
			selected = true
		}
		texts = append(texts, mapNodeText(n))
	}

	prefix := "  "
	if selected {
		prefix = "> "
	}
	graph := string(cells)
	text := strings.Join(texts, " | ")
	if opts.width > 0 {
		room := opts.width - runewidth.StringWidth(prefix+graph) - 1
		text = truncateDisplay(text, max(room, 0))
	}

	if !opts.styled {
		return strings.TrimRight(prefix+graph+" "+text, " ")
	}
	var b strings.Builder
	b.WriteString(prefix)
	for i, r := range cells {
		if r == ' ' {
			b.WriteRune(r)
			continue
		}
		n := nodeAtColumn(nodes, i/mapCellWidth)
		switch {
		case n.ID == opts.cursor:
			b.WriteString(selectedStyle.Render(string(r)))
		case n.IsOnCurrentPath:
			b.WriteString(mapCurrentStyle.Render(string(r)))
		default:
			b.WriteString(mapOtherStyle.Render(string(r)))
		}
	}
	b.WriteByte(' ')
	if selected {
		b.WriteString(selectedStyle.Render(text))
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func nodeAtColumn(nodes []storytree.DisplayNode, col int) storytree.DisplayNode {
	for _, n := range nodes {
		if n.Column == col {
			return n
		}
	}
	return storytree.DisplayNode{}
}

func mapGlyph(n storytree.DisplayNode) rune {
	switch {
	case n.IsRoot:
		return '◆'
	case n.IsLeaf && n.IsOnCurrentPath:
		return '■'
	case n.IsLeaf:
		return '□'
	case n.IsOnCurrentPath:
		return '●'
	default:
		return '○'
	}
}

func mapNodeText(n storytree.DisplayNode) string {
	if n.IsRoot {
		return "(start)"
	}
	text := oneLine(n.Text)
	if n.Label != "" {
		return text + " [" + oneLine(n.Label) + "]"
	}
	return text
}

// buildConnectorRows draws every edge into the connector row under its
// parent. Children sit exactly one row below their parent and later siblings
// always open columns to the right, so runs never cross another edge.
func buildConnectorRows(l storytree.Layout, maxRow, gridWidth int) [][]rune {
	rows := make([][]rune, max(maxRow, 0))
	for i := range rows {
		rows[i] = []rune(strings.Repeat(" ", gridWidth))
	}
	for _, e := range l.Edges {
		from, okFrom := l.Node(e.From)
		to, okTo := l.Node(e.To)
		if !okFrom || !okTo || from.Row >= len(rows) {
			continue
		}
		row := rows[from.Row]
		x1 := from.Column * mapCellWidth
		x2 := to.Column * mapCellWidth
		if x1 == x2 {
			row[x1] = mergeConnector(row[x1], '│')
			continue
		}
		row[x1] = mergeConnector(row[x1], '├')
		for x := x1 + 1; x < x2; x++ {
			row[x] = mergeConnector(row[x], '─')
		}
		row[x2] = mergeConnector(row[x2], '╮')
	}
	return rows
}

func mergeConnector(have, add rune) rune {
	switch {
	case have == ' ' || have == add:
		return add
	case (have == '│' && add == '├') || (have == '├' && add == '│'):
		return '├'
	case (have == '─' && add == '╮') || (have == '╮' && add == '─'):
		return '┬'
	case have == '┬':
		return have
	default:
		return add
	}
}
