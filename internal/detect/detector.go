package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/openboard/umlvision/internal/config"
)

// Detector produces region candidates for the extraction pipeline. The
// model-based strategy runs behind a configured HTTP inference endpoint;
// when no endpoint is configured or the startup probe failed, the classical
// contour fallback is used instead. Call sites branch on Available(), never
// on call-time failures.
type Detector struct {
	cfg    config.DetectConfig
	logger *slog.Logger
	client *http.Client

	available bool
}

// New builds a Detector and probes the remote endpoint once. A nil logger
// defaults to slog.Default().
func New(cfg config.DetectConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
	d.available = d.probe()
	return d
}

// Available reports whether the model-based detector answered the startup
// probe. False means Boxes always uses the contour fallback.
func (d *Detector) Available() bool { return d.available }

func (d *Detector) probe() bool {
	if d.cfg.Endpoint == "" {
		return false
	}
	req, err := http.NewRequest(http.MethodHead, d.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("detector endpoint unreachable, using contour fallback",
			"endpoint", d.cfg.Endpoint, "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Boxes returns deduplicated class-box candidates sorted by confidence
// descending, plus the strategy name that produced them ("model" or
// "contour"). A failing remote call degrades to the fallback for that
// request only.
func (d *Detector) Boxes(img image.Image) ([]Box, string) {
	if d.available {
		boxes, err := d.remoteBoxes(img)
		if err == nil {
			return SuppressOverlaps(boxes, d.cfg.IoUThreshold), "model"
		}
		d.logger.Warn("model detector failed, falling back to contours", "error", err)
	}
	boxes := ContourBoxes(img, d.cfg)
	return SuppressOverlaps(boxes, d.cfg.IoUThreshold), "contour"
}

// Lines returns detected straight segments for relationship inference.
func (d *Detector) Lines(img image.Image) []Segment {
	return LineSegments(img, d.cfg)
}

// remoteBoxResponse is the inference endpoint's wire contract.
type remoteBoxResponse struct {
	Boxes []Box `json:"boxes"`
}

func (d *Detector) remoteBoxes(img image.Image) ([]Box, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for detector: %w", err)
	}

	resp, err := d.client.Post(d.cfg.Endpoint, "image/png", &buf)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var parsed remoteBoxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	boxes := parsed.Boxes
	for i := range boxes {
		if boxes[i].Kind == "" {
			boxes[i].Kind = KindClass
		}
		boxes[i].Confidence = clampUnit(boxes[i].Confidence)
	}
	return boxes, nil
}
