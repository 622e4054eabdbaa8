// Package catalog defines the field catalog the condition-tree validator
// checks leaf predicates against. The catalog is owned by the persistence
// layer; this package only models the read-only view the pipeline receives.
package catalog

import "sort"

// DataType is the declared type of a catalog field.
type DataType string

const (
	TypeString  DataType = "STRING"
	TypeNumber  DataType = "NUMBER"
	TypeBoolean DataType = "BOOLEAN"
	TypeDate    DataType = "DATE"
	TypeEnum    DataType = "ENUM"
)

// Operator is a leaf-predicate comparison operator.
type Operator string

const (
	OpEQ         Operator = "EQ"
	OpNEQ        Operator = "NEQ"
	OpGT         Operator = "GT"
	OpGTE        Operator = "GTE"
	OpLT         Operator = "LT"
	OpLTE        Operator = "LTE"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT_IN"
	OpBetween    Operator = "BETWEEN"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS_WITH"
)

// MultiValue reports whether the operator compares against a set of values.
func (o Operator) MultiValue() bool {
	return o == OpIn || o == OpNotIn
}

// Entry is one field catalog row.
type Entry struct {
	Key               string
	DataType          DataType
	AllowedOperators  []Operator
	MultiValueAllowed bool
	IsActive          bool
}

// Allows reports whether op is in the entry's operator allow-list.
func (e Entry) Allows(op Operator) bool {
	for _, allowed := range e.AllowedOperators {
		if allowed == op {
			return true
		}
	}
	return false
}

// AllowedSet returns the allow-list sorted, for error details.
func (e Entry) AllowedSet() []string {
	out := make([]string, len(e.AllowedOperators))
	for i, op := range e.AllowedOperators {
		out[i] = string(op)
	}
	sort.Strings(out)
	return out
}

// Catalog is the read-only field mapping keyed by field key.
type Catalog map[string]Entry
