package detect

import (
	"image"
	"math"
	"sort"

	"github.com/openboard/umlvision/internal/config"
)

// segment candidates retained per image; keeps the Hough peak scan bounded
const maxSegments = 50

// Segment is a detected straight line segment, the raw material for
// relationship edges.
type Segment struct {
	Start        Point   `json:"start"`
	End          Point   `json:"end"`
	Length       float64 `json:"length"`
	AngleDegrees float64 `json:"angle_degrees"`

	// HasArrowStart / HasArrowEnd report whether an arrowhead pattern was
	// found at the respective endpoint. An arrowhead suggests a directed
	// relationship (inheritance, dependency).
	HasArrowStart bool `json:"has_arrow_start"`
	HasArrowEnd   bool `json:"has_arrow_end"`
}

// Bounds returns the segment's bounding box as a relationship-kind Box. The
// confidence scales with segment length relative to the minimum.
func (s Segment) Bounds(minLength int) Box {
	conf := clampUnit(s.Length / float64(4*minLength))
	return Box{
		X1:         minInt(s.Start.X, s.End.X),
		Y1:         minInt(s.Start.Y, s.End.Y),
		X2:         maxInt(s.Start.X, s.End.X),
		Y2:         maxInt(s.Start.Y, s.End.Y),
		Confidence: conf,
		Kind:       KindRelationship,
	}
}

// LineSegments finds straight line segments using a Hough transform.
//
// Edge pixels vote in (rho, theta) space; local maxima above half the
// minimum length become line candidates. For each candidate the on-line edge
// pixels are collected (within 2px of the ideal line), split at gaps larger
// than cfg.MaxLineGap, and emitted as segments no shorter than
// cfg.MinLineLength.
func LineSegments(img image.Image, cfg config.DetectConfig) []Segment {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	edges := detectEdges(img, width, height)

	maxDist := int(math.Sqrt(float64(width*width + height*height)))
	const numAngles = 180
	accumulator := make([][]int, maxDist*2)
	for i := range accumulator {
		accumulator[i] = make([]int, numAngles)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !edges[y][x] {
				continue
			}
			for theta := 0; theta < numAngles; theta++ {
				angle := float64(theta) * math.Pi / 180.0
				rho := float64(x)*math.Cos(angle) + float64(y)*math.Sin(angle)
				rhoIdx := int(rho) + maxDist
				if rhoIdx >= 0 && rhoIdx < maxDist*2 {
					accumulator[rhoIdx][theta]++
				}
			}
		}
	}

	type peak struct {
		rho   int
		theta int
		votes int
	}
	var peaks []peak
	threshold := cfg.MinLineLength / 2

	for rhoIdx := 0; rhoIdx < maxDist*2; rhoIdx++ {
		for theta := 0; theta < numAngles; theta++ {
			votes := accumulator[rhoIdx][theta]
			if votes < threshold {
				continue
			}
			isMax := true
			for dr := -2; dr <= 2 && isMax; dr++ {
				for dt := -2; dt <= 2 && isMax; dt++ {
					if dr == 0 && dt == 0 {
						continue
					}
					nr := rhoIdx + dr
					nt := (theta + dt + numAngles) % numAngles
					if nr >= 0 && nr < maxDist*2 && accumulator[nr][nt] > votes {
						isMax = false
					}
				}
			}
			if isMax {
				peaks = append(peaks, peak{rho: rhoIdx - maxDist, theta: theta, votes: votes})
			}
		}
	}

	sort.Slice(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })

	var segments []Segment
	for _, p := range peaks {
		if len(segments) >= maxSegments {
			break
		}

		angle := float64(p.theta) * math.Pi / 180.0
		cosA := math.Cos(angle)
		sinA := math.Sin(angle)
		rho := float64(p.rho)

		// Collect edge pixels within 2px of the ideal line, ordered by
		// their projection along it.
		type onLine struct {
			pt   Point
			proj float64
		}
		var pts []onLine
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if !edges[y][x] {
					continue
				}
				dist := math.Abs(float64(x)*cosA + float64(y)*sinA - rho)
				if dist < 2.0 {
					// Projection onto the line direction (-sinA, cosA).
					proj := float64(x)*(-sinA) + float64(y)*cosA
					pts = append(pts, onLine{pt: Point{X: x, Y: y}, proj: proj})
				}
			}
		}
		if len(pts) < cfg.MinLineLength {
			continue
		}
		sort.Slice(pts, func(i, j int) bool { return pts[i].proj < pts[j].proj })

		// Split runs at gaps larger than MaxLineGap.
		runStart := 0
		for i := 1; i <= len(pts); i++ {
			if i < len(pts) && pts[i].proj-pts[i-1].proj <= float64(cfg.MaxLineGap) {
				continue
			}
			seg := buildSegment(pts[runStart].pt, pts[i-1].pt, edges, width, height, bounds)
			if seg.Length >= float64(cfg.MinLineLength) {
				segments = append(segments, seg)
			}
			runStart = i
		}
	}

	return segments
}

func buildSegment(start, end Point, edges [][]bool, width, height int, bounds image.Rectangle) Segment {
	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	length := math.Sqrt(dx*dx + dy*dy)
	angleDeg := math.Atan2(dy, dx) * 180 / math.Pi

	return Segment{
		Start:         Point{X: start.X + bounds.Min.X, Y: start.Y + bounds.Min.Y},
		End:           Point{X: end.X + bounds.Min.X, Y: end.Y + bounds.Min.Y},
		Length:        math.Round(length*10) / 10,
		AngleDegrees:  math.Round(angleDeg*10) / 10,
		HasArrowStart: detectArrowHead(edges, start.X, start.Y, end.X, end.Y, width, height),
		HasArrowEnd:   detectArrowHead(edges, end.X, end.Y, start.X, start.Y, width, height),
	}
}

// detectArrowHead checks for edge pixels forming two wings at ~45 degrees
// from the line direction behind the given endpoint.
func detectArrowHead(edges [][]bool, endX, endY, otherX, otherY, width, height int) bool {
	dx := float64(endX - otherX)
	dy := float64(endY - otherY)
	length := math.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return false
	}
	dx /= length
	dy /= length

	const checkDist = 10
	cos45 := math.Cos(math.Pi / 4)
	sin45 := math.Sin(math.Pi / 4)

	leftX := dx*cos45 - dy*sin45
	leftY := dx*sin45 + dy*cos45
	rightX := dx*cos45 + dy*sin45
	rightY := -dx*sin45 + dy*cos45

	leftCount, rightCount := 0, 0
	for d := 1; d <= checkDist; d++ {
		px := endX - int(float64(d)*leftX)
		py := endY - int(float64(d)*leftY)
		if px >= 0 && px < width && py >= 0 && py < height && edges[py][px] {
			leftCount++
		}
		px = endX - int(float64(d)*rightX)
		py = endY - int(float64(d)*rightY)
		if px >= 0 && px < width && py >= 0 && py < height && edges[py][px] {
			rightCount++
		}
	}
	return leftCount >= 3 && rightCount >= 3
}
