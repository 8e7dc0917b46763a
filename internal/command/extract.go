package command

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/openboard/umlvision/internal/model"
)

// A strategy pulls one JSON object candidate out of free-form model output.
// Strategies are pure and ordered; the first whose candidate decodes into a
// usable delta wins.
type strategy func(text string) (candidate string, ok bool)

var strategies = []strategy{
	directJSON,
	fencedBlock,
	braceBalanced,
	looseActionBlock,
	lastValidJSON,
}

// ExtractDelta runs the strategy chain over raw generative-model output and
// returns the first delta that decodes with a recognized action.
func ExtractDelta(text string) (*model.Delta, bool) {
	for _, s := range strategies {
		candidate, ok := s(text)
		if !ok {
			continue
		}
		if d, ok := decodeDelta(candidate); ok {
			return d, true
		}
	}
	return nil, false
}

// decodeDelta parses a candidate and checks the action tag is one the
// diagram editor understands.
func decodeDelta(candidate string) (*model.Delta, bool) {
	var d model.Delta
	if err := json.Unmarshal([]byte(candidate), &d); err != nil {
		return nil, false
	}
	switch d.Action {
	case model.ActionUpdateNode, model.ActionAddNode, model.ActionDeleteNode,
		model.ActionUpdateEdge, model.ActionAddEdge, model.ActionDeleteEdge:
	default:
		return nil, false
	}
	if d.Changes == nil {
		d.Changes = map[string]model.Change{}
	}
	return &d, true
}

// directJSON accepts output that is already a bare JSON object.
func directJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	if !json.Valid([]byte(trimmed)) {
		return "", false
	}
	return trimmed, true
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// fencedBlock extracts the first markdown code fence.
func fencedBlock(text string) (string, bool) {
	m := fenceRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// braceBalanced scans forward from the first '{' counting brace depth
// (string literals and escapes respected) and returns the balanced span.
func braceBalanced(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

var actionBlockRe = regexp.MustCompile(`\{[^{}]*"action"[^{}]*\}`)

// looseActionBlock grabs a flat object containing an "action" key, for
// output where an outer wrapper broke brace balancing.
func looseActionBlock(text string) (string, bool) {
	m := actionBlockRe.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// lastValidJSON walks '{' positions from the end of the text and returns
// the last balanced span that parses, catching models that emit prose
// followed by the real answer.
func lastValidJSON(text string) (string, bool) {
	for i := strings.LastIndexByte(text, '{'); i >= 0; i = strings.LastIndexByte(text[:i], '{') {
		candidate, ok := braceBalanced(text[i:])
		if ok && json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}
