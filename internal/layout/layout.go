// Package layout assigns on-canvas positions to extracted class nodes.
//
// Three passes are available:
//
//   - Assign: place nodes into detected box regions when the detector found
//     enough of them, otherwise onto a square-ish grid
//   - Hierarchical: Kahn-style leveling by edge topology, one row per level
//   - ResolveOverlaps: a simple order-dependent horizontal deconfliction
//     pass, not a general packing solver
package layout

import (
	"math"
	"sort"

	"github.com/openboard/umlvision/internal/config"
	"github.com/openboard/umlvision/internal/detect"
	"github.com/openboard/umlvision/internal/model"
)

// canvas origin for synthesized layouts
const (
	originX = 80
	originY = 80
)

// Engine computes node positions from detected regions or pure topology.
type Engine struct {
	cfg config.LayoutConfig
}

// New returns an Engine with the given spacing configuration.
func New(cfg config.LayoutConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Assign gives every node a position and size, mutating nodes in place.
//
// When the detector produced at least as many boxes as there are nodes, the
// boxes are sorted by (y, x) ascending and assigned in reading order, with
// width and height taken from the box (clamped to the configured minimums).
// Surplus nodes, or all nodes when boxes are insufficient, get deterministic
// grid positions: ceil(sqrt(n)) columns with fixed cell spacing.
func (e *Engine) Assign(nodes []model.ClassNode, boxes []detect.Box) {
	if len(nodes) == 0 {
		return
	}

	useBoxes := len(boxes) >= len(nodes)
	var ordered []detect.Box
	if useBoxes {
		ordered = make([]detect.Box, len(boxes))
		copy(ordered, boxes)
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Y1 != ordered[j].Y1 {
				return ordered[i].Y1 < ordered[j].Y1
			}
			return ordered[i].X1 < ordered[j].X1
		})
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(nodes)))))
	for i := range nodes {
		if useBoxes && i < len(ordered) {
			b := ordered[i]
			nodes[i].Position = model.Position{X: b.X1, Y: b.Y1}
			nodes[i].Size = model.Size{
				Width:  maxInt(b.Width(), e.cfg.NodeWidth),
				Height: maxInt(b.Height(), e.cfg.NodeHeight),
			}
			nodes[i].FillColor = b.FillColor
			continue
		}
		nodes[i].Position = e.gridSlot(i, cols)
		nodes[i].Size = model.Size{Width: e.cfg.NodeWidth, Height: e.cfg.NodeHeight}
	}
}

// gridSlot returns the deterministic fallback position for the i-th node.
func (e *Engine) gridSlot(i, cols int) model.Position {
	return model.Position{
		X: originX + (i%cols)*e.cfg.CellGapX,
		Y: originY + (i/cols)*e.cfg.CellGapY,
	}
}

// Hierarchical lays nodes out in rows by edge topology: in-degrees are
// computed over the edge list, the zero-in-degree frontier is peeled off
// into successive levels (ties broken by arrival order), and each level
// becomes a row. A residual cycle is flattened onto the current level
// rather than looping forever.
func (e *Engine) Hierarchical(nodes []model.ClassNode, edges []model.Edge) {
	if len(nodes) == 0 {
		return
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	inDegree := make([]int, len(nodes))
	children := make([][]int, len(nodes))
	for _, edge := range edges {
		src, okS := index[edge.Source]
		dst, okD := index[edge.Target]
		if !okS || !okD || src == dst {
			continue
		}
		inDegree[dst]++
		children[src] = append(children[src], dst)
	}

	placed := make([]bool, len(nodes))
	remaining := len(nodes)
	level := 0

	for remaining > 0 {
		var frontier []int
		for i := range nodes {
			if !placed[i] && inDegree[i] == 0 {
				frontier = append(frontier, i)
			}
		}
		if len(frontier) == 0 {
			// Residual cycle: flatten everything left onto this level.
			for i := range nodes {
				if !placed[i] {
					frontier = append(frontier, i)
				}
			}
		}

		for col, i := range frontier {
			nodes[i].Position = model.Position{
				X: originX + col*e.cfg.CellGapX,
				Y: originY + level*e.cfg.CellGapY,
			}
			if nodes[i].Size.Width == 0 {
				nodes[i].Size = model.Size{Width: e.cfg.NodeWidth, Height: e.cfg.NodeHeight}
			}
			placed[i] = true
			remaining--
			for _, child := range children[i] {
				inDegree[child]--
			}
		}
		level++
	}
}

// ResolveOverlaps shifts nodes horizontally until no two padded bounding
// boxes (the configured minimum gap counts as part of the box) intersect.
// Nodes are processed in slice order and only ever move right, so the
// result is order-dependent and deliberately simple.
func (e *Engine) ResolveOverlaps(nodes []model.ClassNode) {
	gap := e.cfg.MinGap

	for j := 1; j < len(nodes); j++ {
		for moved := true; moved; {
			moved = false
			for i := 0; i < j; i++ {
				if overlaps(&nodes[i], &nodes[j], gap) {
					nodes[j].Position.X = nodes[i].Position.X + nodes[i].Size.Width + gap
					moved = true
				}
			}
		}
	}
}

// overlaps reports whether b's bounding box padded by gap intersects a's.
func overlaps(a, b *model.ClassNode, gap int) bool {
	ax1, ay1 := a.Position.X, a.Position.Y
	ax2, ay2 := ax1+a.Size.Width+gap, ay1+a.Size.Height+gap
	bx1, by1 := b.Position.X, b.Position.Y
	bx2, by2 := bx1+b.Size.Width+gap, by1+b.Size.Height+gap

	return ax1 < bx2 && bx1 < ax2 && ay1 < by2 && by1 < ay2
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
