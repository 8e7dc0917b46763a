// Package command turns natural-language editing instructions into diagram
// deltas.
//
// Matching is tiered: a static bilingual table of intent regexes is tried
// first, and only instructions no pattern recognizes fall through to the
// generative-model client with its structured-output extraction chain.
package command

import (
	"regexp"
	"strings"

	"github.com/openboard/umlvision/internal/model"
)

// Intent identifies one of the supported edit operations.
type Intent int

const (
	IntentAddAttribute Intent = iota
	IntentRemoveAttribute
	IntentModifyAttribute
	IntentAddMethod
	IntentRemoveMethod
	IntentAddRelationship
	IntentRemoveRelationship
	IntentRenameClass
	IntentChangeVisibility
)

// String names the intent for descriptions and logs.
func (i Intent) String() string {
	switch i {
	case IntentAddAttribute:
		return "add_attribute"
	case IntentRemoveAttribute:
		return "remove_attribute"
	case IntentModifyAttribute:
		return "modify_attribute"
	case IntentAddMethod:
		return "add_method"
	case IntentRemoveMethod:
		return "remove_method"
	case IntentAddRelationship:
		return "add_relationship"
	case IntentRemoveRelationship:
		return "remove_relationship"
	case IntentRenameClass:
		return "rename_class"
	case IntentChangeVisibility:
		return "change_visibility"
	}
	return "unknown"
}

// pattern binds an intent to the regex that recognizes it in one language.
// Capture-group layout is fixed per intent and shared across languages, so
// the delta builders are language-agnostic.
type pattern struct {
	intent Intent
	re     *regexp.Regexp
}

// englishPatterns is the baseline table. Order matters: the first match
// wins, so the more specific grammars come before the looser relationship
// one.
//
// Group layout per intent:
//
//	add_attribute:       name, type(paren), type(colon), class
//	remove_attribute:    name, class
//	modify_attribute:    name, class, newType
//	add_method:          name, params, returnType, class
//	remove_method:       name, class
//	rename_class:        oldName, newName
//	change_visibility:   memberKind, name, class, visibility
//	add_relationship:    kindWord, source, target
//	remove_relationship: source, target
var englishPatterns = []pattern{
	{IntentAddAttribute, regexp.MustCompile(
		`(?i)^add\s+(?:an?\s+)?attribute\s+(\w+)(?:\s*\(\s*([\w<>\[\]]+)\s*\)|\s*:\s*([\w<>\[\]]+))?\s+to\s+(?:the\s+)?class\s+(\w+)$`)},
	{IntentRemoveAttribute, regexp.MustCompile(
		`(?i)^(?:remove|delete)\s+(?:the\s+)?attribute\s+(\w+)\s+from\s+(?:the\s+)?class\s+(\w+)$`)},
	{IntentModifyAttribute, regexp.MustCompile(
		`(?i)^change\s+(?:the\s+)?(?:type\s+of\s+)?attribute\s+(\w+)\s+(?:in|of)\s+(?:the\s+)?class\s+(\w+)\s+to\s+([\w<>\[\]]+)$`)},
	{IntentAddMethod, regexp.MustCompile(
		`(?i)^add\s+(?:a\s+)?method\s+(\w+)(?:\s*\(\s*([^)]*)\s*\))?(?:\s*:\s*([\w<>\[\]]+))?\s+to\s+(?:the\s+)?class\s+(\w+)$`)},
	{IntentRemoveMethod, regexp.MustCompile(
		`(?i)^(?:remove|delete)\s+(?:the\s+)?method\s+(\w+)\s+from\s+(?:the\s+)?class\s+(\w+)$`)},
	{IntentRenameClass, regexp.MustCompile(
		`(?i)^rename\s+(?:the\s+)?class\s+(\w+)\s+to\s+(\w+)$`)},
	{IntentChangeVisibility, regexp.MustCompile(
		`(?i)^(?:change|set|make)\s+(?:the\s+)?visibility\s+of\s+(?:the\s+)?(attribute|method)\s+(\w+)\s+(?:in|of)\s+(?:the\s+)?class\s+(\w+)\s+to\s+(public|private|protected|package)$`)},
	{IntentRemoveRelationship, regexp.MustCompile(
		`(?i)^(?:remove|delete)\s+(?:the\s+)?(?:\w+\s+)?(?:relationship|relation|association|link)\s+between\s+(?:class\s+)?(\w+)\s+and\s+(?:class\s+)?(\w+)$`)},
	{IntentAddRelationship, regexp.MustCompile(
		`(?i)^(?:add|create)\s+(?:an?\s+)?(\w+)(?:\s+relationship)?\s+(?:from|between)\s+(?:class\s+)?(\w+)\s+(?:to|and|with)\s+(?:class\s+)?(\w+)$`)},
}

// spanishPatterns mirrors englishPatterns with the same group layout.
var spanishPatterns = []pattern{
	{IntentAddAttribute, regexp.MustCompile(
		`(?i)^(?:agregar|añadir|agrega|añade)\s+(?:un\s+)?atributo\s+(\w+)(?:\s*\(\s*([\w<>\[\]]+)\s*\)|\s*:\s*([\w<>\[\]]+))?\s+(?:a|en)\s+(?:la\s+)?clase\s+(\w+)$`)},
	{IntentRemoveAttribute, regexp.MustCompile(
		`(?i)^(?:eliminar|elimina|quitar|quita|borrar|borra)\s+(?:el\s+)?atributo\s+(\w+)\s+de\s+(?:la\s+)?clase\s+(\w+)$`)},
	{IntentModifyAttribute, regexp.MustCompile(
		`(?i)^(?:cambiar|cambia)\s+(?:el\s+)?(?:tipo\s+del?\s+)?atributo\s+(\w+)\s+(?:en|de)\s+(?:la\s+)?clase\s+(\w+)\s+a\s+([\w<>\[\]]+)$`)},
	{IntentAddMethod, regexp.MustCompile(
		`(?i)^(?:agregar|añadir|agrega|añade)\s+(?:un\s+)?m[ée]todo\s+(\w+)(?:\s*\(\s*([^)]*)\s*\))?(?:\s*:\s*([\w<>\[\]]+))?\s+(?:a|en)\s+(?:la\s+)?clase\s+(\w+)$`)},
	{IntentRemoveMethod, regexp.MustCompile(
		`(?i)^(?:eliminar|elimina|quitar|quita|borrar|borra)\s+(?:el\s+)?m[ée]todo\s+(\w+)\s+de\s+(?:la\s+)?clase\s+(\w+)$`)},
	{IntentRenameClass, regexp.MustCompile(
		`(?i)^(?:renombrar|renombra|cambiar\s+el\s+nombre\s+de)\s+(?:la\s+)?clase\s+(\w+)\s+a\s+(\w+)$`)},
	{IntentChangeVisibility, regexp.MustCompile(
		`(?i)^(?:cambiar|cambia)\s+(?:la\s+)?visibilidad\s+del?\s+(atributo|m[ée]todo)\s+(\w+)\s+(?:en|de)\s+(?:la\s+)?clase\s+(\w+)\s+a\s+(p[úu]blic[oa]|privad[oa]|protegid[oa]|paquete)$`)},
	{IntentRemoveRelationship, regexp.MustCompile(
		`(?i)^(?:eliminar|elimina|quitar|quita|borrar|borra)\s+(?:la\s+)?(?:[\wáéíóúñ]+\s+)?relaci[óo]n\s+entre\s+(?:la\s+clase\s+)?(\w+)\s+y\s+(?:la\s+clase\s+)?(\w+)$`)},
	{IntentAddRelationship, regexp.MustCompile(
		`(?i)^(?:agregar|añadir|agrega|añade|crear|crea)\s+(?:una?\s+)?([\wáéíóúñ]+)(?:\s+de)?\s+(?:entre|desde)\s+(?:la\s+clase\s+)?(\w+)\s+(?:a|y|hasta|con)\s+(?:la\s+clase\s+)?(\w+)$`)},
}

// spanishKeywords trigger Spanish table selection. All lowercase; matched
// against whitespace-split words.
var spanishKeywords = map[string]bool{
	"agregar": true, "añadir": true, "agrega": true, "añade": true,
	"clase": true, "atributo": true, "método": true, "metodo": true,
	"eliminar": true, "elimina": true, "quitar": true, "quita": true,
	"borrar": true, "borra": true, "renombrar": true, "renombra": true,
	"cambiar": true, "cambia": true, "crear": true, "crea": true,
	"entre": true, "herencia": true, "visibilidad": true,
	"relación": true, "relacion": true, "desde": true, "hasta": true,
}

// DetectLanguage picks "es" when the instruction contains any Spanish
// keyword, "en" otherwise.
func DetectLanguage(instruction string) string {
	for _, word := range strings.Fields(strings.ToLower(instruction)) {
		if spanishKeywords[strings.Trim(word, ".,;:!?")] {
			return "es"
		}
	}
	return "en"
}

// TableFor returns the pattern table for a detected language, defaulting to
// English.
func TableFor(language string) []pattern {
	if language == "es" {
		return spanishPatterns
	}
	return englishPatterns
}

// relationshipKeywords maps lowercase substrings of the raw instruction to
// an edge kind, checked in order.
var relationshipKeywords = []struct {
	substr string
	kind   model.RelationshipKind
}{
	{"inherit", model.Inheritance},
	{"extends", model.Inheritance},
	{"herencia", model.Inheritance},
	{"hereda", model.Inheritance},
	{"implement", model.Realization},
	{"realiz", model.Realization},
	{"composition", model.Composition},
	{"composici", model.Composition},
	{"aggregat", model.Aggregation},
	{"agregaci", model.Aggregation},
	{"depend", model.Dependency},
}

// InferRelationshipKind scans the raw instruction for kind keywords,
// defaulting to association.
func InferRelationshipKind(instruction string) model.RelationshipKind {
	lower := strings.ToLower(instruction)
	for _, rk := range relationshipKeywords {
		if strings.Contains(lower, rk.substr) {
			return rk.kind
		}
	}
	return model.Association
}
