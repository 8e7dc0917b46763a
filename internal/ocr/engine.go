package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/openboard/umlvision/internal/config"
)

// TextBox is a recognized word with its location in original image
// coordinates and the engine's confidence in [0, 1].
type TextBox struct {
	Text       string  `json:"text"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of a recognition pass. Empty FullText with no Boxes
// means no engine produced output; that is data, not an error.
type Result struct {
	FullText string    `json:"full_text"`
	Boxes    []TextBox `json:"boxes"`

	// Engine names the engine that produced the result ("fast",
	// "accurate"), empty when nothing succeeded.
	Engine string `json:"engine,omitempty"`
}

// MeanConfidence averages the per-word confidences, or 0 with no boxes.
func (r Result) MeanConfidence() float64 {
	if len(r.Boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range r.Boxes {
		sum += b.Confidence
	}
	return sum / float64(len(r.Boxes))
}

// engineSpec is one Tesseract configuration. The fast engine skips layout
// analysis (sparse text mode); the accurate engine runs full automatic page
// segmentation, which is slower but handles multi-column class boxes better.
type engineSpec struct {
	name string
	psm  gosseract.PageSegMode
}

var (
	fastEngine     = engineSpec{name: "fast", psm: gosseract.PSM_SPARSE_TEXT}
	accurateEngine = engineSpec{name: "accurate", psm: gosseract.PSM_AUTO}
)

// Recognizer runs the dual-engine recognition with capability probing done
// once at construction. Safe for concurrent use: each recognition pass owns
// its own Tesseract client.
type Recognizer struct {
	cfg    config.OCRConfig
	logger *slog.Logger

	fastAvailable     bool
	accurateAvailable bool
}

// NewRecognizer probes Tesseract availability and the configured language.
// A nil logger defaults to slog.Default().
func NewRecognizer(cfg config.OCRConfig, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recognizer{cfg: cfg, logger: logger}

	ok := probeTesseract(cfg.Language)
	r.fastAvailable = ok && cfg.FastEngine
	r.accurateAvailable = ok && cfg.AccurateEngine
	if !ok {
		logger.Warn("tesseract unavailable, recognition will return empty results",
			"language", cfg.Language)
	}
	return r
}

// probeTesseract checks that Tesseract initializes and the requested
// language data is installed.
func probeTesseract(language string) (ok bool) {
	defer func() {
		// gosseract panics when the native library is missing entirely.
		if recover() != nil {
			ok = false
		}
	}()

	client := gosseract.NewClient()
	defer client.Close()

	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return false
	}
	for _, l := range langs {
		if l == language {
			return true
		}
	}
	return false
}

// FastAvailable reports whether the sparse-text engine can run.
func (r *Recognizer) FastAvailable() bool { return r.fastAvailable }

// AccurateAvailable reports whether the full-page engine can run.
func (r *Recognizer) AccurateAvailable() bool { return r.accurateAvailable }

// Available reports whether any engine can run.
func (r *Recognizer) Available() bool { return r.fastAvailable || r.accurateAvailable }

// Engines lists the engines that would be attempted, in order.
func (r *Recognizer) Engines() []string {
	var names []string
	if r.fastAvailable {
		names = append(names, fastEngine.name)
	}
	if r.accurateAvailable {
		names = append(names, accurateEngine.name)
	}
	return names
}

// Recognize extracts text from a preprocessed raster. Engines are tried in
// order (fast, then accurate); the first that yields non-empty text wins.
// Never returns an error: total failure yields an empty Result.
func (r *Recognizer) Recognize(img image.Image) Result {
	encoded, err := encodePNG(img)
	if err != nil {
		r.logger.Warn("failed to encode image for recognition", "error", err)
		return Result{}
	}

	specs := make([]engineSpec, 0, 2)
	if r.fastAvailable {
		specs = append(specs, fastEngine)
	}
	if r.accurateAvailable {
		specs = append(specs, accurateEngine)
	}

	for _, spec := range specs {
		res, err := r.runEngine(spec, encoded)
		if err != nil {
			r.logger.Warn("recognition engine failed", "engine", spec.name, "error", err)
			continue
		}
		if res.FullText != "" {
			res.Engine = spec.name
			return res
		}
	}
	return Result{}
}

// RecognizeRegion crops the given rectangle out of the original image,
// preprocesses and recognizes it, and re-bases the word boxes into original
// image coordinates, undoing any upscaling the preprocessor applied.
func (r *Recognizer) RecognizeRegion(img image.Image, x1, y1, x2, y2 int) Result {
	cropped := imaging.Crop(img, image.Rect(x1, y1, x2, y2))
	pre := Preprocess(cropped)
	res := r.Recognize(pre)

	scale := 1.0
	if w := cropped.Bounds().Dx(); w > 0 {
		scale = float64(pre.Bounds().Dx()) / float64(w)
	}
	for i := range res.Boxes {
		res.Boxes[i].X1 = x1 + int(float64(res.Boxes[i].X1)/scale)
		res.Boxes[i].Y1 = y1 + int(float64(res.Boxes[i].Y1)/scale)
		res.Boxes[i].X2 = x1 + int(float64(res.Boxes[i].X2)/scale)
		res.Boxes[i].Y2 = y1 + int(float64(res.Boxes[i].Y2)/scale)
	}
	return res
}

func (r *Recognizer) runEngine(spec engineSpec, encoded []byte) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine %s panicked: %v", spec.name, p)
		}
	}()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.cfg.Language); err != nil {
		return Result{}, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(spec.psm); err != nil {
		return Result{}, fmt.Errorf("failed to set page seg mode: %w", err)
	}
	if err := client.SetImageFromBytes(encoded); err != nil {
		return Result{}, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognition failed: %w", err)
	}

	// Word boxes are best effort: some configurations cannot iterate at
	// word level, in which case the text alone still flows downstream.
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Result{FullText: text}, nil
	}

	out := make([]TextBox, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		out = append(out, TextBox{
			Text:       box.Word,
			X1:         box.Box.Min.X,
			Y1:         box.Box.Min.Y,
			X2:         box.Box.Max.X,
			Y2:         box.Box.Max.Y,
			Confidence: box.Confidence / 100.0,
		})
	}
	return Result{FullText: text, Boxes: out}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Version returns the Tesseract library version, or an empty string when the
// backend is unavailable. Used by the probe CLI subcommand.
func Version() (version string) {
	defer func() {
		if recover() != nil {
			version = ""
		}
	}()
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
