// Package umltext turns recognized text blocks into class diagrams.
//
// The parser is a line-oriented state machine over OCR output:
//
//   - a bare capitalized identifier starts a new class
//   - a separator line of repeated - = _ toggles the attribute/method section
//   - a <<stereotype>> marker flags abstract classes and interfaces
//   - member lines are parsed against attribute and method grammars
//
// Type tokens are normalized through a fixed synonym table so that "int",
// "integer" and "Integer" all come out identically; normalization is
// idempotent.
package umltext

import (
	"regexp"
	"strings"

	"github.com/openboard/umlvision/internal/faults"
	"github.com/openboard/umlvision/internal/model"
)

var (
	classNameRe  = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]{0,49}$`)
	separatorRe  = regexp.MustCompile(`^[-=_]{3,}$`)
	stereotypeRe = regexp.MustCompile(`^<<\s*([A-Za-zÀ-ÿ]+)\s*>>$`)

	// [visibility] name(params) [: returnType] [{modifiers}]
	methodRe = regexp.MustCompile(`^([+\-#~])?\s*([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(?::\s*([\w<>\[\], ]+?))?\s*(?:\{([\w, ]+)\})?$`)

	// [visibility] name : type [{modifiers}]
	attributeRe = regexp.MustCompile(`^([+\-#~])?\s*([A-Za-z_]\w*)\s*:\s*([\w<>\[\]]+)\s*(?:\{([\w, ]+)\})?$`)
)

// typeSynonyms maps lowercase OCR'd type tokens to their canonical form.
var typeSynonyms = map[string]string{
	"int":       "Integer",
	"integer":   "Integer",
	"str":       "String",
	"string":    "String",
	"bool":      "Boolean",
	"boolean":   "Boolean",
	"float":     "Double",
	"double":    "Double",
	"real":      "Double",
	"long":      "Long",
	"char":      "Character",
	"character": "Character",
	"date":      "Date",
	"datetime":  "Date",
	"list":      "List",
	"array":     "List",
	"map":       "Map",
	"dict":      "Map",
	"set":       "Set",
	"object":    "Object",
	"obj":       "Object",
	"void":      "void",
}

// abstract / interface stereotype keywords, English and Spanish
var (
	abstractWords  = map[string]bool{"abstract": true, "abstracta": true, "abstracto": true}
	interfaceWords = map[string]bool{"interface": true, "interfaz": true}
)

// NormalizeType maps a raw type token to its canonical form: known synonyms
// through the table, any other lower-case token capitalized. Idempotent:
// NormalizeType(NormalizeType(x)) == NormalizeType(x).
func NormalizeType(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return token
	}
	if canon, ok := typeSynonyms[strings.ToLower(token)]; ok {
		return canon
	}
	if token[0] >= 'a' && token[0] <= 'z' {
		return strings.ToUpper(token[:1]) + token[1:]
	}
	return token
}

// visibilityFor maps a grammar symbol to a visibility level; an absent
// symbol falls back to the given default.
func visibilityFor(symbol string, fallback model.Visibility) model.Visibility {
	switch symbol {
	case "+":
		return model.VisibilityPublic
	case "-":
		return model.VisibilityPrivate
	case "#":
		return model.VisibilityProtected
	case "~":
		return model.VisibilityPackage
	}
	return fallback
}

// section tracks which member block a separator line has opened.
type section int

const (
	sectionUnknown section = iota
	sectionAttributes
	sectionMethods
)

// Parser segments OCR text into class nodes and infers association edges.
type Parser struct {
	newNodeID model.Generator
	newEdgeID model.Generator
	newSubID  model.Generator
}

// NewParser builds a Parser minting identifiers from gen.
func NewParser(gen model.Generator) *Parser {
	return &Parser{
		newNodeID: model.Prefixed("node_", gen),
		newEdgeID: model.Prefixed("edge_", gen),
		newSubID:  gen,
	}
}

// Parse segments the text block into class nodes and runs the best-effort
// relationship inference pass. Returns faults.ErrNoStructure when zero
// classes could be segmented.
func (p *Parser) Parse(text string) ([]model.ClassNode, []model.Edge, error) {
	var nodes []model.ClassNode
	var current *model.ClassNode
	state := sectionUnknown

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case separatorRe.MatchString(line):
			if state == sectionAttributes {
				state = sectionMethods
			} else {
				state = sectionAttributes
			}

		case stereotypeRe.MatchString(line):
			if current == nil {
				continue
			}
			word := strings.ToLower(stereotypeRe.FindStringSubmatch(line)[1])
			if abstractWords[word] {
				current.IsAbstract = true
			}
			if interfaceWords[word] {
				current.IsInterface = true
			}

		case methodRe.MatchString(line):
			if current == nil {
				continue
			}
			m := methodRe.FindStringSubmatch(line)
			current.Methods = append(current.Methods, p.parseMethod(m))

		case attributeRe.MatchString(line):
			if current == nil {
				continue
			}
			m := attributeRe.FindStringSubmatch(line)
			current.Attributes = append(current.Attributes, p.parseAttribute(m))

		case classNameRe.MatchString(line):
			nodes = append(nodes, model.ClassNode{
				ID:         p.newNodeID(),
				Label:      line,
				Attributes: []model.Attribute{},
				Methods:    []model.Method{},
			})
			current = &nodes[len(nodes)-1]
			state = sectionUnknown
		}
	}

	if len(nodes) == 0 {
		return nil, nil, faults.ErrNoStructure
	}

	edges := p.inferAssociations(nodes)
	return nodes, edges, nil
}

func (p *Parser) parseAttribute(m []string) model.Attribute {
	attr := model.Attribute{
		ID:         p.newSubID(),
		Name:       m[2],
		Type:       NormalizeType(m[3]),
		Visibility: visibilityFor(m[1], model.VisibilityPrivate),
	}
	applyModifiers(m[4], &attr.IsStatic, &attr.IsFinal)
	return attr
}

func (p *Parser) parseMethod(m []string) model.Method {
	ret := "void"
	if m[4] != "" {
		ret = NormalizeType(m[4])
	}
	return model.Method{
		ID:         p.newSubID(),
		Name:       m[2],
		ReturnType: ret,
		Visibility: visibilityFor(m[1], model.VisibilityPublic),
		Parameters: parseParameters(m[3]),
	}
}

// parseParameters splits "a: int, b: str" into typed parameters. A bare
// name without a colon gets type Object.
func parseParameters(raw string) []model.Parameter {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []model.Parameter{}
	}

	parts := strings.Split(raw, ",")
	params := make([]model.Parameter, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, found := strings.Cut(part, ":")
		param := model.Parameter{Name: strings.TrimSpace(name), Type: "Object"}
		if found {
			param.Type = NormalizeType(typ)
		}
		params = append(params, param)
	}
	return params
}

// applyModifiers reads a "{static, final}" suffix, with Spanish synonyms.
func applyModifiers(raw string, isStatic, isFinal *bool) {
	for _, word := range strings.Split(strings.ToLower(raw), ",") {
		switch strings.TrimSpace(word) {
		case "static", "estatico":
			*isStatic = true
		case "final", "constante":
			*isFinal = true
		}
	}
}

// inferAssociations scans every class's attributes for types naming another
// class: such an attribute becomes an ASSOCIATION edge with multiplicity
// 1 → * labeled by the attribute name.
func (p *Parser) inferAssociations(nodes []model.ClassNode) []model.Edge {
	byLabel := make(map[string]string, len(nodes))
	for _, n := range nodes {
		byLabel[n.Label] = n.ID
	}

	edges := []model.Edge{}
	for _, n := range nodes {
		for _, attr := range n.Attributes {
			targetID, ok := byLabel[attr.Type]
			if !ok || targetID == n.ID {
				continue
			}
			edges = append(edges, model.Edge{
				ID:                 p.newEdgeID(),
				Source:             n.ID,
				Target:             targetID,
				Kind:               model.Association,
				SourceMultiplicity: "1",
				TargetMultiplicity: "*",
				Label:              attr.Name,
			})
		}
	}
	return edges
}
