package detect

import (
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openboard/umlvision/internal/config"
)

// whiteImage creates a solid white test image.
func whiteImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

// drawRect draws a filled black rectangle. A filled region yields a single
// clean edge ring, which is what detection sees for shaded class boxes; a
// 1px outline double-edges and scores poorly, as with the hand-drawn case.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int) {
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			img.Set(x, y, color.Black)
		}
	}
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, 1.0},
		{"disjoint", Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Box{X1: 20, Y1: 20, X2: 30, Y2: 30}, 0.0},
		{"half overlap", Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Box{X1: 5, Y1: 0, X2: 15, Y2: 10}, 50.0 / 150.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("IoU = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuppressOverlaps(t *testing.T) {
	boxes := []Box{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Confidence: 0.6},
		{X1: 5, Y1: 5, X2: 105, Y2: 105, Confidence: 0.9}, // overlaps first, higher confidence
		{X1: 300, Y1: 300, X2: 400, Y2: 400, Confidence: 0.5},
	}

	kept := SuppressOverlaps(boxes, 0.5)
	if len(kept) != 2 {
		t.Fatalf("expected 2 boxes after NMS, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("highest-confidence box should survive, got %v", kept[0].Confidence)
	}
	for _, b := range kept {
		if b.Confidence == 0.6 {
			t.Error("lower-confidence overlapping box should be suppressed")
		}
	}
}

func TestSuppressOverlaps_SortsByConfidence(t *testing.T) {
	boxes := []Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.2},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Confidence: 0.8},
	}
	kept := SuppressOverlaps(boxes, 0.5)
	if len(kept) != 2 {
		t.Fatalf("disjoint boxes should all survive, got %d", len(kept))
	}
	if kept[0].Confidence < kept[1].Confidence {
		t.Error("result should be sorted by confidence descending")
	}
}

func TestContourBoxes_FindsRectangle(t *testing.T) {
	img := whiteImage(200, 200)
	drawRect(img, 20, 30, 160, 130)

	cfg := config.Default().Detect
	cfg.MinBoxArea = 500
	cfg.Rectangularity = 0.3

	boxes := ContourBoxes(img, cfg)
	if len(boxes) == 0 {
		t.Fatal("expected at least one box for a drawn rectangle")
	}

	b := boxes[0]
	if b.Kind != KindClass {
		t.Errorf("kind = %q, want class", b.Kind)
	}
	if b.X1 > 25 || b.Y1 > 35 || b.X2 < 155 || b.Y2 < 125 {
		t.Errorf("box %+v does not cover the drawn rectangle", b)
	}
	if b.Confidence <= 0 || b.Confidence > 1 {
		t.Errorf("confidence %v outside (0, 1]", b.Confidence)
	}
}

func TestContourBoxes_EmptyImage(t *testing.T) {
	boxes := ContourBoxes(whiteImage(200, 200), config.Default().Detect)
	if len(boxes) != 0 {
		t.Errorf("expected 0 boxes in blank image, got %d", len(boxes))
	}
}

func TestContourBoxes_AspectRatioFilter(t *testing.T) {
	img := whiteImage(400, 120)
	// 360x20 outline: aspect ratio 18, far outside [0.3, 3.0].
	drawRect(img, 20, 50, 380, 70)

	cfg := config.Default().Detect
	cfg.MinBoxArea = 100
	cfg.Rectangularity = 0.1

	for _, b := range ContourBoxes(img, cfg) {
		aspect := float64(b.Width()) / float64(b.Height())
		if aspect < 0.3 || aspect > 3.0 {
			t.Errorf("box with aspect %v should have been filtered", aspect)
		}
	}
}

func TestLineSegments_Horizontal(t *testing.T) {
	img := whiteImage(200, 100)
	for x := 20; x <= 180; x++ {
		img.Set(x, 50, color.Black)
	}

	cfg := config.Default().Detect
	segments := LineSegments(img, cfg)
	if len(segments) == 0 {
		t.Fatal("expected a segment for a drawn horizontal line")
	}

	found := false
	for _, s := range segments {
		if s.Length >= 100 && (s.AngleDegrees < 10 && s.AngleDegrees > -10 ||
			s.AngleDegrees > 170 || s.AngleDegrees < -170) {
			found = true
		}
	}
	if !found {
		t.Errorf("no near-horizontal long segment among %d results", len(segments))
	}
}

func TestLineSegments_BlankImage(t *testing.T) {
	segments := LineSegments(whiteImage(100, 100), config.Default().Detect)
	if len(segments) != 0 {
		t.Errorf("expected 0 segments, got %d", len(segments))
	}
}

func TestSegmentBounds(t *testing.T) {
	s := Segment{Start: Point{X: 100, Y: 10}, End: Point{X: 20, Y: 60}, Length: 94.3}
	b := s.Bounds(40)
	if b.X1 != 20 || b.Y1 != 10 || b.X2 != 100 || b.Y2 != 60 {
		t.Errorf("bounds = %+v", b)
	}
	if b.Kind != KindRelationship {
		t.Errorf("kind = %q, want relationship", b.Kind)
	}
	if b.Confidence <= 0 || b.Confidence > 1 {
		t.Errorf("confidence %v outside (0, 1]", b.Confidence)
	}
}

func TestDetector_RemoteBoxes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(remoteBoxResponse{Boxes: []Box{
			{X1: 10, Y1: 10, X2: 110, Y2: 90, Confidence: 0.95},
			{X1: 12, Y1: 12, X2: 112, Y2: 92, Confidence: 0.40}, // duplicate, suppressed
		}})
	}))
	defer srv.Close()

	cfg := config.Default().Detect
	cfg.Endpoint = srv.URL

	d := New(cfg, nil)
	if !d.Available() {
		t.Fatal("detector should be available after successful probe")
	}

	boxes, method := d.Boxes(whiteImage(200, 200))
	if method != "model" {
		t.Errorf("method = %q, want model", method)
	}
	if len(boxes) != 1 {
		t.Fatalf("expected 1 box after NMS, got %d", len(boxes))
	}
	if boxes[0].Kind != KindClass {
		t.Errorf("kind defaulting failed: %q", boxes[0].Kind)
	}
}

func TestDetector_FallsBackWithoutEndpoint(t *testing.T) {
	d := New(config.Default().Detect, nil)
	if d.Available() {
		t.Fatal("detector should be unavailable with no endpoint")
	}

	img := whiteImage(200, 200)
	drawRect(img, 20, 30, 160, 130)
	cfg := config.Default().Detect
	cfg.MinBoxArea = 500
	cfg.Rectangularity = 0.3
	d2 := New(cfg, nil)

	_, method := d2.Boxes(img)
	if method != "contour" {
		t.Errorf("method = %q, want contour", method)
	}
}

func TestMeanLuminance(t *testing.T) {
	light := MeanLuminance(whiteImage(64, 64))
	if light < 0.9 {
		t.Errorf("white image luminance = %v, want near 1", light)
	}

	dark := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			dark.Set(x, y, color.Black)
		}
	}
	if got := MeanLuminance(dark); got > 0.1 {
		t.Errorf("black image luminance = %v, want near 0", got)
	}
}

func TestSampleHex(t *testing.T) {
	img := whiteImage(10, 10)
	img.Set(5, 5, color.RGBA{255, 128, 64, 255})

	if hex := SampleHex(img, 5, 5); hex != "#ff8040" {
		t.Errorf("SampleHex = %q, want #ff8040", hex)
	}
	if hex := SampleHex(img, 50, 50); hex != "" {
		t.Errorf("out-of-bounds sample should be empty, got %q", hex)
	}
}
