// Package ocr extracts text from diagram rasters.
//
// Recognition runs two independently configured Tesseract engines (via
// gosseract/v2): a fast sparse-text pass first, then a full page-analysis
// pass. Extraction never raises: if both engines fail or are unavailable,
// the result is empty text and no boxes, so that downstream stages report
// "no UML detected" instead of crashing.
//
// Engine availability is probed once at construction; call sites branch on
// the resulting capability flags, never on call-time import or init errors.
package ocr

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// preprocessing constants; window and bias picked for typical screenshot
// and phone-photo text sizes
const (
	adaptiveWindow = 15
	adaptiveBias   = 10
	denoiseRadius  = 1.0
	closeRadius    = 1.0
	minOCRWidth    = 1000
)

// Preprocess prepares a raster for recognition: grayscale normalization
// (1/3/4-channel inputs all flatten the same way), mild Gaussian denoising,
// adaptive mean thresholding with polarity chosen from overall luminance,
// and a light morphological close over the dark strokes.
func Preprocess(img image.Image) *image.Gray {
	// Upscale small images; Tesseract degrades sharply below ~10px glyphs.
	if img.Bounds().Dx() < minOCRWidth {
		scale := 2
		img = imaging.Resize(img, img.Bounds().Dx()*scale, 0, imaging.Lanczos)
	}

	gray := effect.Grayscale(img)
	smoothed := blur.Gaussian(gray, denoiseRadius)

	binary := adaptiveThreshold(smoothed, adaptiveWindow, adaptiveBias, meanLuminance(img) < 0.5)

	// Close small gaps in dark glyph strokes: erode expands dark regions,
	// dilate shrinks them back.
	closed := effect.Dilate(effect.Erode(binary, closeRadius), closeRadius)

	out := image.NewGray(closed.Bounds())
	for y := closed.Bounds().Min.Y; y < closed.Bounds().Max.Y; y++ {
		for x := closed.Bounds().Min.X; x < closed.Bounds().Max.X; x++ {
			r, _, _, _ := closed.At(x, y).RGBA()
			out.SetGray(x, y, color.Gray{Y: uint8(r >> 8)})
		}
	}
	return out
}

// adaptiveThreshold binarizes against the local mean over a sliding window,
// using an integral image so the cost stays linear in pixel count. A pixel
// darker than (local mean - bias) becomes ink. With invert set the polarity
// flips, turning light-on-dark input into the dark-on-light form Tesseract
// expects.
func adaptiveThreshold(img image.Image, window, bias int, invert bool) *image.RGBA {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	lum := make([][]int, h)
	integral := make([][]int64, h+1)
	integral[0] = make([]int64, w+1)
	for y := 0; y < h; y++ {
		lum[y] = make([]int, w)
		integral[y+1] = make([]int64, w+1)
		for x := 0; x < w; x++ {
			r, _, _, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			v := int(r >> 8)
			lum[y][x] = v
			integral[y+1][x+1] = integral[y][x+1] + integral[y+1][x] - integral[y][x] + int64(v)
		}
	}

	half := window / 2
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x1 := clamp(x-half, 0, w-1)
			y1 := clamp(y-half, 0, h-1)
			x2 := clamp(x+half, 0, w-1)
			y2 := clamp(y+half, 0, h-1)

			area := int64((x2 - x1 + 1) * (y2 - y1 + 1))
			sum := integral[y2+1][x2+1] - integral[y1][x2+1] - integral[y2+1][x1] + integral[y1][x1]
			mean := int(sum / area)

			ink := lum[y][x] < mean-bias
			if invert {
				ink = lum[y][x] > mean+bias
			}
			if ink {
				out.Set(x, y, image.Black)
			} else {
				out.Set(x, y, image.White)
			}
		}
	}
	return out
}

// meanLuminance samples perceptual luminance on a coarse grid. Below 0.5 the
// image is predominantly dark and threshold polarity is flipped.
func meanLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	step := clamp(min(bounds.Dx(), bounds.Dy())/64, 1, 1<<20)

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
		return 1
	}
	return sum / float64(n)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
