package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openboard/umlvision/internal/cache"
	"github.com/openboard/umlvision/internal/config"
	"github.com/openboard/umlvision/internal/faults"
	"github.com/openboard/umlvision/internal/model"
	"github.com/openboard/umlvision/internal/ratelimit"
	"github.com/openboard/umlvision/internal/umltext"
)

// generative is the fallback surface Processor needs; *GenClient satisfies
// it and tests substitute canned output.
type generative interface {
	Available() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

// Request is one instruction to interpret.
type Request struct {
	Instruction string
	DiagramID   string
	Snapshot    *model.DiagramSnapshot

	// Identity keys the rate-limit window.
	Identity string

	// UseCache controls both lookup and store for this request.
	UseCache bool
}

// Processor interprets editing instructions against a diagram snapshot.
type Processor struct {
	cfg       *config.Config
	log       *slog.Logger
	gen       generative
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	newEdgeID model.Generator
}

// NewProcessor wires a Processor from configuration.
func NewProcessor(cfg *config.Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:   cfg,
		log:   logger,
		gen:   NewGenClient(cfg.Generative, logger),
		cache: cache.New(cfg.Cache.CommandTTL),
		limiter: ratelimit.New(map[string]config.RateLimitConfig{
			"command": cfg.Command,
		}),
		newEdgeID: model.Prefixed("edge_", model.UUID()),
	}
}

// Process turns one instruction into a Delta.
//
// The pattern path is tried first; instructions it cannot match fall
// through to the generative client. Reference-resolution failures from a
// matched pattern are terminal and never retried against the fallback.
func (p *Processor) Process(ctx context.Context, req Request) (*model.Delta, error) {
	instruction := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(req.Instruction), "."))
	if instruction == "" {
		return nil, faults.InvalidInput("empty instruction")
	}
	if req.Snapshot == nil {
		req.Snapshot = &model.DiagramSnapshot{}
	}

	key := p.cacheKey(req.DiagramID, instruction, req.Snapshot)
	if req.UseCache {
		if hit, ok := p.cache.Get(key); ok {
			p.log.Debug("command cache hit", "diagram", req.DiagramID)
			d := hit.(model.Delta)
			return &d, nil
		}
	}

	if ok, retry := p.limiter.Allow(req.Identity, "command"); !ok {
		return nil, &faults.RateLimited{Operation: "command", RetryAfter: retry}
	}

	lang := DetectLanguage(instruction)
	delta, matched, err := p.patternDelta(instruction, lang, req.Snapshot)
	if err != nil {
		return nil, err
	}
	if !matched {
		delta, err = p.fallbackDelta(ctx, instruction, req.Snapshot)
		if err != nil {
			return nil, err
		}
	}

	if req.UseCache {
		p.cache.Set(key, *delta)
	}
	p.log.Info("instruction processed",
		"diagram", req.DiagramID,
		"language", lang,
		"action", delta.Action,
		"pattern", matched,
	)
	return delta, nil
}

// cacheKey hashes the semantically relevant fields: diagram identity, the
// lower-cased instruction, and the full snapshot. Caller identity never
// participates.
func (p *Processor) cacheKey(diagramID, instruction string, snap *model.DiagramSnapshot) string {
	snapJSON, _ := json.Marshal(snap)
	return cache.Key([]byte(diagramID), []byte(strings.ToLower(instruction)), snapJSON)
}

// patternDelta tries the language's intent table in order. matched reports
// whether any regex hit; err is only set for a matched pattern whose
// references fail to resolve.
func (p *Processor) patternDelta(instruction, lang string, snap *model.DiagramSnapshot) (*model.Delta, bool, error) {
	for _, pat := range TableFor(lang) {
		m := pat.re.FindStringSubmatch(instruction)
		if m == nil {
			continue
		}
		d, err := p.buildDelta(pat.intent, m, instruction, snap)
		if err != nil {
			return nil, true, err
		}
		return d, true, nil
	}
	return nil, false, nil
}

// buildDelta constructs the Delta for one matched intent. Group layout per
// intent is documented on englishPatterns.
func (p *Processor) buildDelta(intent Intent, m []string, instruction string, snap *model.DiagramSnapshot) (*model.Delta, error) {
	switch intent {
	case IntentAddAttribute:
		name, class := m[1], m[4]
		typ := firstNonEmpty(m[2], m[3], "String")
		node, err := resolveNode(snap, class)
		if err != nil {
			return nil, err
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				"data.attributes": {
					Operation: model.OpAppend,
					Value: model.Attribute{
						Name:       name,
						Type:       umltext.NormalizeType(typ),
						Visibility: model.VisibilityPrivate,
					},
				},
			},
			Description: fmt.Sprintf("add attribute %s to %s", name, node.Label),
		}, nil

	case IntentRemoveAttribute:
		name, class := m[1], m[2]
		node, err := resolveNode(snap, class)
		if err != nil {
			return nil, err
		}
		if !hasAttribute(node, name) {
			return nil, faults.NotFound("attribute", name)
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				"data.attributes": {
					Operation: model.OpRemove,
					Filter:    map[string]any{"name": name},
				},
			},
			Description: fmt.Sprintf("remove attribute %s from %s", name, node.Label),
		}, nil

	case IntentModifyAttribute:
		name, class, typ := m[1], m[2], m[3]
		node, err := resolveNode(snap, class)
		if err != nil {
			return nil, err
		}
		if !hasAttribute(node, name) {
			return nil, faults.NotFound("attribute", name)
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				"data.attributes": {
					Operation: model.OpUpdate,
					Filter:    map[string]any{"name": name},
					Value:     map[string]any{"type": umltext.NormalizeType(typ)},
				},
			},
			Description: fmt.Sprintf("change attribute %s of %s to %s", name, node.Label, typ),
		}, nil

	case IntentAddMethod:
		name, params, ret, class := m[1], m[2], m[3], m[4]
		node, err := resolveNode(snap, class)
		if err != nil {
			return nil, err
		}
		if ret == "" {
			ret = "void"
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				"data.methods": {
					Operation: model.OpAppend,
					Value: model.Method{
						Name:       name,
						ReturnType: umltext.NormalizeType(ret),
						Visibility: model.VisibilityPublic,
						Parameters: parseParameters(params),
					},
				},
			},
			Description: fmt.Sprintf("add method %s to %s", name, node.Label),
		}, nil

	case IntentRemoveMethod:
		name, class := m[1], m[2]
		node, err := resolveNode(snap, class)
		if err != nil {
			return nil, err
		}
		if !hasMethod(node, name) {
			return nil, faults.NotFound("method", name)
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				"data.methods": {
					Operation: model.OpRemove,
					Filter:    map[string]any{"name": name},
				},
			},
			Description: fmt.Sprintf("remove method %s from %s", name, node.Label),
		}, nil

	case IntentRenameClass:
		oldName, newName := m[1], m[2]
		node, err := resolveNode(snap, oldName)
		if err != nil {
			return nil, err
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				"data.label": {
					Operation: model.OpReplace,
					Value:     newName,
				},
			},
			Description: fmt.Sprintf("rename %s to %s", node.Label, newName),
		}, nil

	case IntentChangeVisibility:
		memberKind, name, class, vis := m[1], m[2], m[3], m[4]
		node, err := resolveNode(snap, class)
		if err != nil {
			return nil, err
		}
		path := "data.attributes"
		if isMethodWord(memberKind) {
			path = "data.methods"
			if !hasMethod(node, name) {
				return nil, faults.NotFound("method", name)
			}
		} else if !hasAttribute(node, name) {
			return nil, faults.NotFound("attribute", name)
		}
		return &model.Delta{
			Action: model.ActionUpdateNode,
			NodeID: node.ID,
			Changes: map[string]model.Change{
				path: {
					Operation: model.OpUpdate,
					Filter:    map[string]any{"name": name},
					Value:     map[string]any{"visibility": string(normalizeVisibility(vis))},
				},
			},
			Description: fmt.Sprintf("set visibility of %s on %s", name, node.Label),
		}, nil

	case IntentAddRelationship:
		source, target := m[2], m[3]
		src, err := resolveNode(snap, source)
		if err != nil {
			return nil, err
		}
		dst, err := resolveNode(snap, target)
		if err != nil {
			return nil, err
		}
		kind := InferRelationshipKind(instruction)
		return &model.Delta{
			Action: model.ActionAddEdge,
			Changes: map[string]model.Change{
				"data": {
					Operation: model.OpAppend,
					Value: model.Edge{
						ID:     p.newEdgeID(),
						Source: src.ID,
						Target: dst.ID,
						Kind:   kind,
					},
				},
			},
			Description: fmt.Sprintf("add %s from %s to %s", strings.ToLower(string(kind)), src.Label, dst.Label),
		}, nil

	case IntentRemoveRelationship:
		source, target := m[1], m[2]
		src, err := resolveNode(snap, source)
		if err != nil {
			return nil, err
		}
		dst, err := resolveNode(snap, target)
		if err != nil {
			return nil, err
		}
		edge := snap.FindEdge(src.ID, dst.ID)
		if edge == nil {
			return nil, faults.NotFound("relationship", source+"-"+target)
		}
		return &model.Delta{
			Action:      model.ActionDeleteEdge,
			EdgeID:      edge.ID,
			Changes:     map[string]model.Change{},
			Description: fmt.Sprintf("remove relationship between %s and %s", src.Label, dst.Label),
		}, nil
	}

	return nil, faults.InvalidInput("unhandled intent %v", intent)
}

// fallbackDelta asks the generative model and runs the extraction chain
// over its output.
func (p *Processor) fallbackDelta(ctx context.Context, instruction string, snap *model.DiagramSnapshot) (*model.Delta, error) {
	if !p.gen.Available() {
		return nil, fmt.Errorf("no pattern matched and no generative endpoint configured: %w", faults.ErrCommandNotRecognized)
	}

	names := make([]string, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		names = append(names, n.Label)
	}

	out, err := p.gen.Complete(ctx, Prompt(instruction, names))
	if err != nil {
		p.log.Warn("generative fallback failed", "error", err)
		return nil, fmt.Errorf("generative fallback failed (%v), try rephrasing the instruction: %w",
			err, faults.ErrCommandNotRecognized)
	}

	delta, ok := ExtractDelta(out)
	if !ok {
		return nil, fmt.Errorf("generative output carried no usable delta, try rephrasing the instruction: %w",
			faults.ErrCommandNotRecognized)
	}
	return delta, nil
}

// resolveNode looks a class up by label, case-insensitively.
func resolveNode(snap *model.DiagramSnapshot, label string) (*model.ClassNode, error) {
	if node := snap.FindNodeByLabel(label); node != nil {
		return node, nil
	}
	return nil, faults.NotFound("node", label)
}

func hasAttribute(node *model.ClassNode, name string) bool {
	for _, a := range node.Attributes {
		if strings.EqualFold(a.Name, name) {
			return true
		}
	}
	return false
}

func hasMethod(node *model.ClassNode, name string) bool {
	for _, m := range node.Methods {
		if strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

func isMethodWord(word string) bool {
	w := strings.ToLower(word)
	return w == "method" || w == "método" || w == "metodo"
}

// normalizeVisibility maps English and Spanish visibility words onto the
// model's four levels.
func normalizeVisibility(word string) model.Visibility {
	switch strings.ToLower(word) {
	case "public", "público", "publico", "pública", "publica":
		return model.VisibilityPublic
	case "protected", "protegido", "protegida":
		return model.VisibilityProtected
	case "package", "paquete":
		return model.VisibilityPackage
	default:
		return model.VisibilityPrivate
	}
}

// parseParameters splits "a: Integer, b: String" into typed parameters; a
// bare name defaults to Object.
func parseParameters(raw string) []model.Parameter {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var params []model.Parameter
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, found := strings.Cut(part, ":")
		param := model.Parameter{Name: strings.TrimSpace(name), Type: "Object"}
		if found {
			param.Type = umltext.NormalizeType(strings.TrimSpace(typ))
		}
		params = append(params, param)
	}
	return params
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
