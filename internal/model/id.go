package model

import "github.com/google/uuid"

// Generator produces unique string identifiers. All constructors that mint
// nodes or edges accept one, making the ID strategy a startup-time decision
// rather than a compile-time one.
type Generator func() string

// UUID returns a Generator producing RFC 4122 random UUID strings.
// Collision-resistant across runs, unlike label-derived short hashes.
func UUID() Generator {
	return func() string {
		return uuid.NewString()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
// Useful for type-scoped identifiers (e.g. "node_", "edge_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}
