package main

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/onurmatik/taletinker/storytree"
)

// Canvas placement for exported maps. These are tighter than the layout
// geometry so labels have room on the right of the canvas.
const (
	svgColumnGap = 40
	svgRowGap    = 60
	svgStart     = 40
	svgNodeR     = 6
	svgRootR     = 9
)

const (
	svgEdgeStyle        = "fill:none;stroke:#9ca3af;stroke-width:1.5"
	svgCurrentEdgeStyle = "fill:none;stroke:#2563eb;stroke-width:3"
	svgNodeStyle        = "fill:#ffffff;stroke:#6b7280;stroke-width:1.5"
	svgCurrentNodeStyle = "fill:#2563eb;stroke:#1e3a8a;stroke-width:1.5"
	svgLabelStyle       = "font-family:sans-serif;font-size:12px;fill:#111827"
	svgHintStyle        = "font-family:sans-serif;font-size:10px;fill:#6b7280"
)

func svgPoint(n storytree.DisplayNode) (int, int) {
	return svgStart + n.Column*svgColumnGap, svgStart + n.Row*svgRowGap
}

// writeLayoutSVG draws l as a standalone SVG document. Edges between columns
// bend with a vertical-tangent cubic; edges that stay in a column are
// straight. Both ends on the current path draw the edge thicker.
func writeLayoutSVG(w io.Writer, l storytree.Layout, title string) error {
	if l.Empty() {
		return fmt.Errorf("nothing to draw: empty story map")
	}
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(l.Width, l.Height)
	if title != "" {
		canvas.Title(title)
	}

	canvas.Gid("edges")
	for _, e := range l.Edges {
		from, okFrom := l.Node(e.From)
		to, okTo := l.Node(e.To)
		if !okFrom || !okTo {
			continue
		}
		style := svgEdgeStyle
		if from.IsOnCurrentPath && to.IsOnCurrentPath {
			style = svgCurrentEdgeStyle
		}
		x1, y1 := svgPoint(from)
		x2, y2 := svgPoint(to)
		if e.Kind == storytree.EdgeCurved {
			canvas.Bezier(x1, y1, x1, y1+svgRowGap/2, x2, y2-svgRowGap/2, x2, y2, style)
			continue
		}
		canvas.Line(x1, y1, x2, y2, style)
	}
	canvas.Gend()

	canvas.Gid("nodes")
	for _, n := range l.Nodes {
		x, y := svgPoint(n)
		style := svgNodeStyle
		if n.IsOnCurrentPath {
			style = svgCurrentNodeStyle
		}
		r := svgNodeR
		if n.IsRoot {
			r = svgRootR
		}
		canvas.Circle(x, y, r, style)
		switch {
		case n.Label != "":
			canvas.Text(x+svgNodeR*2, y+4, oneLine(n.Label), svgLabelStyle)
		case n.IsLeaf:
			canvas.Text(x+svgNodeR*2, y+4, truncateDisplay(oneLine(n.Text), 40), svgHintStyle)
		}
	}
	canvas.Gend()
	canvas.End()
	return ew.err
}

// errWriter remembers the first write error so drawing code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
