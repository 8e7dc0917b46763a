package ocr

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess_OutputIsGray(t *testing.T) {
	img := solidImage(1200, 400, color.White)
	out := Preprocess(img)

	if out.Bounds().Dx() != 1200 {
		t.Errorf("large image should keep width, got %d", out.Bounds().Dx())
	}
}

func TestPreprocess_UpscalesSmallImages(t *testing.T) {
	img := solidImage(400, 200, color.White)
	out := Preprocess(img)

	if out.Bounds().Dx() != 800 {
		t.Errorf("small image should be doubled to 800, got %d", out.Bounds().Dx())
	}
}

func TestPreprocess_HandlesGrayInput(t *testing.T) {
	// Single-channel input must flatten the same way as RGB.
	img := image.NewGray(image.Rect(0, 0, 1100, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 1100; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	out := Preprocess(img)
	if out == nil || out.Bounds().Dy() != 300 {
		t.Fatal("grayscale input should preprocess cleanly")
	}
}

func TestAdaptiveThreshold_DarkTextOnLight(t *testing.T) {
	img := solidImage(100, 100, color.White)
	// A dark blob in the middle.
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			img.Set(x, y, color.Black)
		}
	}

	out := adaptiveThreshold(img, adaptiveWindow, adaptiveBias, false)

	// Blob boundary pixels should be ink (black); far corner stays white.
	r, _, _, _ := out.At(40, 50).RGBA()
	if r>>8 > 128 {
		t.Error("dark blob edge should binarize to ink")
	}
	r, _, _, _ = out.At(5, 5).RGBA()
	if r>>8 < 128 {
		t.Error("uniform background should binarize to white")
	}
}

func TestAdaptiveThreshold_InvertedPolarity(t *testing.T) {
	img := solidImage(100, 100, color.Black)
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			img.Set(x, y, color.White)
		}
	}

	out := adaptiveThreshold(img, adaptiveWindow, adaptiveBias, true)

	// With inverted polarity the light blob becomes ink.
	r, _, _, _ := out.At(40, 50).RGBA()
	if r>>8 > 128 {
		t.Error("light blob edge should binarize to ink under inversion")
	}
}

func TestMeanLuminance_Polarity(t *testing.T) {
	if l := meanLuminance(solidImage(64, 64, color.White)); l < 0.5 {
		t.Errorf("white image luminance %v should exceed 0.5", l)
	}
	if l := meanLuminance(solidImage(64, 64, color.Black)); l >= 0.5 {
		t.Errorf("black image luminance %v should be below 0.5", l)
	}
}

func TestResult_MeanConfidence(t *testing.T) {
	if got := (Result{}).MeanConfidence(); got != 0 {
		t.Errorf("empty result mean confidence = %v, want 0", got)
	}

	res := Result{Boxes: []TextBox{
		{Confidence: 0.8},
		{Confidence: 0.6},
	}}
	if got := res.MeanConfidence(); got < 0.699 || got > 0.701 {
		t.Errorf("mean confidence = %v, want 0.7", got)
	}
}
