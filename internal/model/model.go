// Package model defines the diagram data model shared by both pipelines.
//
// All types here are transient: extraction creates them per request from a
// recognized image, instruction processing only reads them from a
// caller-supplied snapshot. Nothing in this package is persisted by the core.
//
// # Identity
//
// Node, edge, attribute and method identifiers are assigned at creation via
// a pluggable Generator (see id.go) and are never reassigned. A node's ID is
// immutable once an edge references it.
package model

import "strings"

// Visibility is a UML member visibility level.
type Visibility string

// The four UML visibility levels, mapped from the symbols + - # ~.
const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityPackage   Visibility = "package"
)

// RelationshipKind classifies an edge between two class nodes.
type RelationshipKind string

const (
	Association RelationshipKind = "ASSOCIATION"
	Aggregation RelationshipKind = "AGGREGATION"
	Composition RelationshipKind = "COMPOSITION"
	Inheritance RelationshipKind = "INHERITANCE"
	Dependency  RelationshipKind = "DEPENDENCY"
	Realization RelationshipKind = "REALIZATION"
)

// Position is an on-canvas coordinate in logical pixels.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a node's rendered width and height hint.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Parameter is a single method parameter.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Attribute is a class field.
//
// Type is always the normalized form (see umltext.NormalizeType).
type Attribute struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Visibility Visibility `json:"visibility"`
	IsStatic   bool       `json:"is_static"`
	IsFinal    bool       `json:"is_final"`
}

// Method is a class operation with an ordered parameter list.
type Method struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	ReturnType string      `json:"return_type"`
	Visibility Visibility  `json:"visibility"`
	Parameters []Parameter `json:"parameters"`
}

// ClassNode is a single class box on the canvas.
type ClassNode struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Attributes  []Attribute `json:"attributes"`
	Methods     []Method    `json:"methods"`
	IsAbstract  bool        `json:"is_abstract"`
	IsInterface bool        `json:"is_interface"`
	Position    Position    `json:"position"`
	Size        Size        `json:"size"`

	// FillColor is the hex color sampled from the detected region, when the
	// node came from image extraction. Empty for nodes created any other way.
	FillColor string `json:"fill_color,omitempty"`
}

// Edge is a relationship between two class nodes.
//
// Source and Target must resolve to ClassNode IDs present in the same
// result or snapshot.
type Edge struct {
	ID                 string           `json:"id"`
	Source             string           `json:"source"`
	Target             string           `json:"target"`
	Kind               RelationshipKind `json:"kind"`
	SourceMultiplicity string           `json:"source_multiplicity,omitempty"`
	TargetMultiplicity string           `json:"target_multiplicity,omitempty"`
	Label              string           `json:"label,omitempty"`
}

// DiagramSnapshot is the caller's current diagram state. It is the only
// externally supplied mutable state for instruction processing and is never
// mutated in place: the processor only reads it to validate references and
// build a Delta.
type DiagramSnapshot struct {
	Nodes []ClassNode `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// FindNodeByLabel returns the first node whose label matches the given name
// case-insensitively, or nil.
func (s *DiagramSnapshot) FindNodeByLabel(label string) *ClassNode {
	for i := range s.Nodes {
		if strings.EqualFold(s.Nodes[i].Label, label) {
			return &s.Nodes[i]
		}
	}
	return nil
}

// FindEdge returns the first edge connecting the two node IDs in either
// direction, or nil.
func (s *DiagramSnapshot) FindEdge(a, b string) *Edge {
	for i := range s.Edges {
		e := &s.Edges[i]
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			return e
		}
	}
	return nil
}
