// Package pipeline orchestrates image-to-diagram extraction.
//
// An Extractor runs the full chain: payload validation, content-addressed
// cache lookup, rate limiting, region detection, OCR preprocessing and
// recognition, grammar parsing, layout synthesis, and an optional merge
// into an existing diagram. Individual stages degrade rather than fail:
// a missing detector model falls back to contour analysis, and OCR engine
// selection happens inside the recognizer.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/openboard/umlvision/internal/cache"
	"github.com/openboard/umlvision/internal/config"
	"github.com/openboard/umlvision/internal/detect"
	"github.com/openboard/umlvision/internal/faults"
	"github.com/openboard/umlvision/internal/layout"
	"github.com/openboard/umlvision/internal/model"
	"github.com/openboard/umlvision/internal/ocr"
	"github.com/openboard/umlvision/internal/ratelimit"
	"github.com/openboard/umlvision/internal/umltext"
	"github.com/openboard/umlvision/internal/validate"
)

// endpointPad widens a class box when matching relationship line endpoints
// to it, since lines stop short of the boxes they connect.
const endpointPad = 20

// TextRecognizer is the OCR surface the pipeline needs. *ocr.Recognizer
// satisfies it; tests substitute a canned implementation.
type TextRecognizer interface {
	Available() bool
	Engines() []string
	Recognize(img image.Image) ocr.Result
	RecognizeRegion(img image.Image, x1, y1, x2, y2 int) ocr.Result
}

// Metadata describes how an extraction result was produced.
type Metadata struct {
	ClassesExtracted       int      `json:"classes_extracted"`
	RelationshipsExtracted int      `json:"relationships_extracted"`
	ProcessingTimeMS       int64    `json:"processing_time_ms"`
	Confidence             float64  `json:"confidence"`
	Method                 string   `json:"method"`
	EnginesUsed            []string `json:"engines_used"`
	Cached                 bool     `json:"cached"`
}

// Result is a complete extraction: positioned nodes, edges, and provenance.
type Result struct {
	Nodes    []model.ClassNode `json:"nodes"`
	Edges    []model.Edge      `json:"edges"`
	Metadata Metadata          `json:"metadata"`
}

// Request is one extraction call.
type Request struct {
	// Payload is the base64-encoded image, with or without a data-URI
	// prefix.
	Payload string

	// Identity keys the rate-limit window, typically a user or session ID.
	Identity string

	// Existing, when set, is merged with the extraction: its nodes win
	// label collisions and extracted edges are rewired onto them.
	Existing *model.DiagramSnapshot

	// UseCache enables the result cache for this call, both lookup and
	// store. A bypassed call still counts against the rate limit.
	UseCache bool
}

// Extractor wires the extraction stages together.
type Extractor struct {
	cfg        *config.Config
	log        *slog.Logger
	detector   *detect.Detector
	recognizer TextRecognizer
	parser     *umltext.Parser
	layout     *layout.Engine
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
}

// NewExtractor builds an Extractor from configuration, probing the detector
// endpoint and OCR engines once up front.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:        cfg,
		log:        logger,
		detector:   detect.New(cfg.Detect, logger),
		recognizer: ocr.NewRecognizer(cfg.OCR, logger),
		parser:     umltext.NewParser(model.UUID()),
		layout:     layout.New(cfg.Layout),
		cache:      cache.New(cfg.Cache.ExtractionTTL),
		limiter: ratelimit.New(map[string]config.RateLimitConfig{
			"extract": cfg.Extraction,
		}),
	}
}

// Extract runs the full pipeline for one image.
//
// With req.UseCache set, cached results are returned before the rate limit
// is consulted, so repeated identical requests stay cheap for the caller.
// The cache holds the pre-merge extraction; merging into req.Existing
// happens per call. Invalid images are rejected before the rate limit, so
// they never consume a window slot.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	raw, err := validate.DecodePayload(req.Payload)
	if err != nil {
		return nil, err
	}
	key := cache.Key(raw, []byte(e.cfg.OCR.Language))

	if req.UseCache {
		if hit, ok := e.cache.Get(key); ok {
			res := hit.(Result)
			res.Metadata.Cached = true
			res.Metadata.ProcessingTimeMS = time.Since(start).Milliseconds()
			e.log.Debug("extraction cache hit", "key", key[:12])
			return e.finish(res, req.Existing), nil
		}
	}

	img, format, err := validate.Image(raw, e.cfg.Image)
	if err != nil {
		return nil, err
	}

	if ok, retry := e.limiter.Allow(req.Identity, "extract"); !ok {
		return nil, &faults.RateLimited{Operation: "extract", RetryAfter: retry}
	}

	if !e.recognizer.Available() {
		return nil, fmt.Errorf("extract: %w", faults.ErrEngineUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes, method := e.detector.Boxes(img)
	classBoxes := keepClassBoxes(boxes)

	text, ocrConf := e.recognizeText(img, classBoxes)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodes, edges, err := e.parser.Parse(text)
	if err != nil {
		return nil, err
	}

	sufficient := len(classBoxes) >= len(nodes)
	e.layout.Assign(nodes, classBoxes)
	if !sufficient && len(edges) > 0 {
		e.layout.Hierarchical(nodes, edges)
	}

	// Segment mapping relies on nodes still sitting at their box origins,
	// so it runs before overlap resolution can shift anything.
	edges = append(edges, e.segmentEdges(e.detector.Lines(img), nodes, classBoxes, edges)...)
	e.layout.ResolveOverlaps(nodes)

	res := Result{
		Nodes: nodes,
		Edges: edges,
		Metadata: Metadata{
			ClassesExtracted:       len(nodes),
			RelationshipsExtracted: len(edges),
			Confidence:             overallConfidence(ocrConf, classBoxes),
			Method:                 method,
			EnginesUsed:            e.recognizer.Engines(),
		},
	}
	if req.UseCache {
		e.cache.Set(key, res)
	}

	e.log.Info("extraction complete",
		"format", format,
		"method", method,
		"classes", len(nodes),
		"relationships", len(edges),
		"confidence", res.Metadata.Confidence,
	)

	res.Metadata.ProcessingTimeMS = time.Since(start).Milliseconds()
	return e.finish(res, req.Existing), nil
}

// recognizeText runs OCR per detected class box when boxes exist, falling
// back to whole-image recognition when region OCR finds nothing. Region
// crops and the whole-image path are preprocessed before recognition. It
// returns the combined text and the mean recognition confidence.
func (e *Extractor) recognizeText(img image.Image, boxes []detect.Box) (string, float64) {
	if len(boxes) > 0 {
		var text string
		var confSum float64
		var confN int
		for _, b := range boxes {
			r := e.recognizer.RecognizeRegion(img, b.X1, b.Y1, b.X2, b.Y2)
			if r.FullText == "" {
				continue
			}
			if text != "" {
				text += "\n\n"
			}
			text += r.FullText
			confSum += r.MeanConfidence()
			confN++
		}
		if text != "" {
			return text, confSum / float64(confN)
		}
	}
	r := e.recognizer.Recognize(ocr.Preprocess(img))
	return r.FullText, r.MeanConfidence()
}

// segmentEdges turns detected relationship lines into edges between the
// nodes whose boxes their endpoints touch. Segments that duplicate a parsed
// edge, or whose endpoints do not land on two distinct boxes, are dropped.
// Nodes must still hold the positions Assign gave them.
func (e *Extractor) segmentEdges(segs []detect.Segment, nodes []model.ClassNode, boxes []detect.Box, existing []model.Edge) []model.Edge {
	if len(boxes) < 2 || len(nodes) == 0 {
		return nil
	}

	// Assign placed nodes at their box origin, so boxes map back to nodes
	// by position.
	nodeAt := make(map[model.Position]string, len(nodes))
	for _, n := range nodes {
		nodeAt[n.Position] = n.ID
	}

	connected := func(a, b string) bool {
		for _, ed := range existing {
			if (ed.Source == a && ed.Target == b) || (ed.Source == b && ed.Target == a) {
				return true
			}
		}
		return false
	}

	var out []model.Edge
	gen := model.Prefixed("edge_", model.UUID())
	for _, seg := range segs {
		if seg.Length < float64(e.cfg.Detect.MinLineLength) {
			continue
		}
		srcBox := boxNear(boxes, seg.Start)
		dstBox := boxNear(boxes, seg.End)
		if srcBox == nil || dstBox == nil || srcBox == dstBox {
			continue
		}
		src, okS := nodeAt[model.Position{X: srcBox.X1, Y: srcBox.Y1}]
		dst, okD := nodeAt[model.Position{X: dstBox.X1, Y: dstBox.Y1}]
		if !okS || !okD || src == dst {
			continue
		}
		// An arrow at the start means the segment was traced backwards.
		if seg.HasArrowStart && !seg.HasArrowEnd {
			src, dst = dst, src
		}
		if connected(src, dst) || hasPair(out, src, dst) {
			continue
		}
		kind := model.Association
		if seg.HasArrowStart || seg.HasArrowEnd {
			kind = model.Inheritance
		}
		out = append(out, model.Edge{ID: gen(), Source: src, Target: dst, Kind: kind})
	}
	return out
}

func hasPair(edges []model.Edge, a, b string) bool {
	for _, e := range edges {
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			return true
		}
	}
	return false
}

// boxNear returns the first box whose padded rectangle contains p, or nil.
func boxNear(boxes []detect.Box, p detect.Point) *detect.Box {
	for i := range boxes {
		b := &boxes[i]
		if p.X >= b.X1-endpointPad && p.X <= b.X2+endpointPad &&
			p.Y >= b.Y1-endpointPad && p.Y <= b.Y2+endpointPad {
			return b
		}
	}
	return nil
}

func keepClassBoxes(boxes []detect.Box) []detect.Box {
	out := boxes[:0:0]
	for _, b := range boxes {
		if b.Kind == detect.KindClass {
			out = append(out, b)
		}
	}
	return out
}

// overallConfidence averages OCR confidence with detection confidence when
// boxes exist, clamped to [0, 1].
func overallConfidence(ocrConf float64, boxes []detect.Box) float64 {
	conf := ocrConf
	if len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		conf = (ocrConf + sum/float64(len(boxes))) / 2
	}
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// finish copies res and, when existing is set, merges the extraction into
// it: existing nodes win label collisions, extracted edges are rewired onto
// the surviving node IDs, and edges that duplicate an existing connection
// are dropped.
func (e *Extractor) finish(res Result, existing *model.DiagramSnapshot) *Result {
	nodes := make([]model.ClassNode, len(res.Nodes))
	copy(nodes, res.Nodes)
	edges := make([]model.Edge, len(res.Edges))
	copy(edges, res.Edges)
	res.Nodes, res.Edges = nodes, edges

	if existing == nil {
		return &res
	}

	merged := make([]model.ClassNode, len(existing.Nodes))
	copy(merged, existing.Nodes)

	remap := make(map[string]string)
	for _, n := range res.Nodes {
		if prior := existing.FindNodeByLabel(n.Label); prior != nil {
			remap[n.ID] = prior.ID
			continue
		}
		merged = append(merged, n)
	}

	mergedEdges := make([]model.Edge, len(existing.Edges))
	copy(mergedEdges, existing.Edges)
	for _, ed := range res.Edges {
		if to, ok := remap[ed.Source]; ok {
			ed.Source = to
		}
		if to, ok := remap[ed.Target]; ok {
			ed.Target = to
		}
		if ed.Source == ed.Target || existing.FindEdge(ed.Source, ed.Target) != nil {
			continue
		}
		mergedEdges = append(mergedEdges, ed)
	}

	res.Nodes = merged
	res.Edges = mergedEdges
	res.Metadata.ClassesExtracted = len(merged)
	res.Metadata.RelationshipsExtracted = len(mergedEdges)
	return &res
}
