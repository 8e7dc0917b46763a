// Package detect locates candidate diagram regions in a raster image.
//
// Two strategies produce class-box candidates:
//
//   - A model-based detector reached over HTTP, used when an inference
//     endpoint is configured and answered the startup probe.
//   - A classical fallback: gradient edge detection, flood-fill contour
//     extraction, bounding boxes filtered by rectangularity and aspect
//     ratio.
//
// A companion Hough transform finds straight line segments for relationship
// edges. Duplicate boxes are removed with non-maximum suppression on IoU.
//
// # Coordinate System
//
// All coordinates use the standard image convention: origin (0,0) top-left,
// X rightward, Y downward. Boxes use inclusive top-left and exclusive
// bottom-right corners.
package detect

import (
	"image"
	"sort"
)

// BoxKind classifies what a detected region likely contains.
type BoxKind string

const (
	KindClass        BoxKind = "class"
	KindRelationship BoxKind = "relationship"
)

// Box is a detected rectangular region with a confidence score.
type Box struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
	Kind       BoxKind `json:"kind"`

	// FillColor is the hex color sampled at the region center. May be empty
	// if sampling was skipped.
	FillColor string `json:"fill_color,omitempty"`
}

// Width returns the horizontal extent in pixels.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height returns the vertical extent in pixels.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area in square pixels.
func (b Box) Area() int { return b.Width() * b.Height() }

// Point is a 2D pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// IoU computes the intersection-over-union overlap ratio of two boxes.
// Returns 0 when the boxes are disjoint or degenerate.
func IoU(a, b Box) float64 {
	ix1 := maxInt(a.X1, b.X1)
	iy1 := maxInt(a.Y1, b.Y1)
	ix2 := minInt(a.X2, b.X2)
	iy2 := minInt(a.Y2, b.Y2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// SuppressOverlaps removes boxes whose IoU with an already-retained
// higher-confidence box exceeds threshold. The input is sorted by confidence
// descending; the higher-confidence box of each overlapping pair survives.
func SuppressOverlaps(boxes []Box, threshold float64) []Box {
	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Box, 0, len(sorted))
	for _, b := range sorted {
		suppressed := false
		for _, k := range kept {
			if IoU(b, k) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}

// grayValue converts a pixel to grayscale using ITU-R BT.601 luminance
// weights: Y = 0.299*R + 0.587*G + 0.114*B.
func grayValue(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
