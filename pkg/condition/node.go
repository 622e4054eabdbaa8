// Package condition models rule condition trees: the boolean expression
// describing when a rule matches. Two wire dialects are accepted, a
// shorthand form ({"and":[...]}) and a typed form ({"type":"AND",
// "conditions":[...]}), and normalized into one tagged union at the
// validation boundary, so nothing downstream branches on raw maps.
package condition

import "github.com/atlasrisk/rulegate/pkg/catalog"

// Node is the common interface for all condition-tree nodes.
type Node interface {
	// AsValue renders the node in the shorthand wire dialect as a generic
	// JSON value, ready for canonical serialization.
	AsValue() any

	nodeMarker()
}

// And matches when every child matches. At least one child is required.
type And struct {
	Children []Node
}

func (*And) nodeMarker() {}

func (n *And) AsValue() any {
	return map[string]any{"and": childValues(n.Children)}
}

// Or matches when any child matches. At least one child is required.
type Or struct {
	Children []Node
}

func (*Or) nodeMarker() {}

func (n *Or) AsValue() any {
	return map[string]any{"or": childValues(n.Children)}
}

// Not negates exactly one child.
type Not struct {
	Child Node
}

func (*Not) nodeMarker() {}

func (n *Not) AsValue() any {
	return map[string]any{"not": n.Child.AsValue()}
}

// Leaf is a single field predicate. Value retains the wire value as
// decoded (json.Number for numbers); it may be nil.
type Leaf struct {
	FieldKey string
	Op       catalog.Operator
	Value    any
}

func (*Leaf) nodeMarker() {}

func (n *Leaf) AsValue() any {
	return map[string]any{
		"field": n.FieldKey,
		"op":    string(n.Op),
		"value": n.Value,
	}
}

func childValues(children []Node) []any {
	out := make([]any, len(children))
	for i, c := range children {
		out[i] = c.AsValue()
	}
	return out
}
