// Package validate implements input sanity checking for diagram extraction.
//
// Validation is a pure function over raw encoded bytes: no network, no file
// I/O, no side effects. Every rejection names the violated bound so the
// caller can fix the input.
package validate

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"strings"

	"github.com/openboard/umlvision/internal/config"
	"github.com/openboard/umlvision/internal/faults"
)

// DecodePayload strips an optional data-URI prefix ("data:image/png;base64,")
// and base64-decodes the payload into raw image bytes.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, faults.InvalidInput("payload is not valid base64: %v", err)
	}
	return raw, nil
}

// Image decodes and sanity-checks raw encoded image bytes against the
// configured bounds. On success it returns the decoded raster and the
// detected format name ("png", "jpeg", "gif").
//
// Rejections (all wrapping faults.ErrInvalidInput):
//   - byte length above cfg.MaxBytes
//   - undecodable or unrecognized raster format
//   - either dimension outside [cfg.MinDimension, cfg.MaxDimension]
func Image(raw []byte, cfg config.ImageConfig) (image.Image, string, error) {
	if len(raw) == 0 {
		return nil, "", faults.InvalidInput("empty image payload")
	}
	if len(raw) > cfg.MaxBytes {
		return nil, "", faults.InvalidInput("image is %d bytes, limit is %d", len(raw), cfg.MaxBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", faults.InvalidInput("undecodable image: %v", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < cfg.MinDimension || h < cfg.MinDimension {
		return nil, "", faults.InvalidInput("image %dx%d below minimum dimension %dpx", w, h, cfg.MinDimension)
	}
	if w > cfg.MaxDimension || h > cfg.MaxDimension {
		return nil, "", faults.InvalidInput("image %dx%d above maximum dimension %dpx", w, h, cfg.MaxDimension)
	}

	return img, format, nil
}
