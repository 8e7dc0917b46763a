package detect

import (
	"image"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/openboard/umlvision/internal/config"
)

// aspect ratio bounds for a plausible class box
const (
	minAspect = 0.3
	maxAspect = 3.0
)

// ContourBoxes finds class-box candidates using classical image processing.
//
// # Algorithm
//
//  1. Gradient edge detection (|Δgray| > threshold against right and lower
//     neighbors)
//  2. Flood-fill grouping of connected edge pixels into contours
//  3. Bounding box per contour
//  4. Rectangularity score: 1 - |contourLen - 2(w+h)| / 2(w+h). A perfect
//     rectangle outline has contour length exactly equal to its perimeter.
//  5. Filtering: area below cfg.MinBoxArea, score below cfg.Rectangularity,
//     or aspect ratio outside [0.3, 3.0] are rejected.
//
// Results are sorted by confidence descending. Callers should follow with
// SuppressOverlaps to drop duplicate detections of the same box.
func ContourBoxes(img image.Image, cfg config.DetectConfig) []Box {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	edges := detectEdges(img, width, height)
	contours := findContours(edges, width, height)

	boxes := make([]Box, 0, len(contours))
	for _, contour := range contours {
		if len(contour) < 4 {
			continue
		}

		minX, minY := width, height
		maxX, maxY := 0, 0
		for _, p := range contour {
			minX = minInt(minX, p.X)
			maxX = maxInt(maxX, p.X)
			minY = minInt(minY, p.Y)
			maxY = maxInt(maxY, p.Y)
		}

		w := maxX - minX
		h := maxY - minY
		if w == 0 || h == 0 || w*h < cfg.MinBoxArea {
			continue
		}

		aspect := float64(w) / float64(h)
		if aspect < minAspect || aspect > maxAspect {
			continue
		}

		perimeter := 2 * (w + h)
		rectangularity := 1.0 - math.Abs(float64(len(contour)-perimeter))/float64(perimeter)
		if rectangularity < cfg.Rectangularity {
			continue
		}

		boxes = append(boxes, Box{
			X1:         minX + bounds.Min.X,
			Y1:         minY + bounds.Min.Y,
			X2:         maxX + bounds.Min.X,
			Y2:         maxY + bounds.Min.Y,
			Confidence: clampUnit(rectangularity),
			Kind:       KindClass,
			FillColor:  SampleHex(img, (minX+maxX)/2+bounds.Min.X, (minY+maxY)/2+bounds.Min.Y),
		})
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})
	return boxes
}

// SampleHex returns the hex color ("#rrggbb") of a pixel. Coordinates
// outside the image return an empty string.
func SampleHex(img image.Image, x, y int) string {
	if !image.Pt(x, y).In(img.Bounds()) {
		return ""
	}
	c, ok := colorful.MakeColor(img.At(x, y))
	if !ok {
		return ""
	}
	return c.Hex()
}

// MeanLuminance returns the average perceptual luminance of an image in
// [0,1], sampled on a coarse grid. Used to pick threshold polarity before
// OCR (dark-on-light vs light-on-dark).
func MeanLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	step := maxInt(1, minInt(bounds.Dx(), bounds.Dy())/64)

	var sum float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			if c, ok := colorful.MakeColor(img.At(x, y)); ok {
				_, _, l := c.HSLuv()
				sum += l
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// detectEdges performs simple gradient-based edge detection. Pixels where
// the grayscale difference against the right or lower neighbor exceeds the
// threshold are edges. Border pixels are never edges.
func detectEdges(img image.Image, width, height int) [][]bool {
	bounds := img.Bounds()
	edges := make([][]bool, height)
	const threshold = 30.0

	for y := 0; y < height; y++ {
		edges[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				continue
			}
			c := grayValue(img, x+bounds.Min.X, y+bounds.Min.Y)
			cx := grayValue(img, x+1+bounds.Min.X, y+bounds.Min.Y)
			cy := grayValue(img, x+bounds.Min.X, y+1+bounds.Min.Y)

			dx := math.Abs(float64(c) - float64(cx))
			dy := math.Abs(float64(c) - float64(cy))
			if dx > threshold || dy > threshold {
				edges[y][x] = true
			}
		}
	}
	return edges
}

// findContours groups connected edge pixels into contours with flood-fill.
// Connectivity is 8-connected; contours under 10 pixels are noise.
func findContours(edges [][]bool, width, height int) [][]Point {
	visited := make([][]bool, height)
	for y := range visited {
		visited[y] = make([]bool, width)
	}

	var contours [][]Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if edges[y][x] && !visited[y][x] {
				contour := make([]Point, 0)
				floodFill(edges, visited, x, y, width, height, &contour)
				if len(contour) >= 10 {
					contours = append(contours, contour)
				}
			}
		}
	}
	return contours
}

// floodFill is an iterative stack-based fill to avoid stack overflow on
// large contours.
func floodFill(edges, visited [][]bool, startX, startY, width, height int, contour *[]Point) {
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || !edges[p.Y][p.X] {
			continue
		}

		visited[p.Y][p.X] = true
		*contour = append(*contour, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
