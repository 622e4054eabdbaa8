package condition

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/atlasrisk/rulegate/pkg/catalog"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// Validate normalizes and validates a raw condition tree against the field
// catalog in a single pre-order, left-to-right pass, failing on the first
// violation. In lenient mode a field key absent from the catalog is logged
// and accepted as an unvalidated pass-through (the field may only exist at
// runtime); in strict mode it fails. Inactive fields fail in both modes.
//
// The returned Node is the normalized tagged union; callers assemble the
// compiled AST from it rather than from the raw value.
func Validate(raw any, cat catalog.Catalog, lenient bool) (Node, error) {
	v := &validator{
		catalog: cat,
		lenient: lenient,
		logger:  slog.Default().With("component", "condition"),
		warn:    rate.Sometimes{First: 3, Interval: time.Second},
	}
	return v.node(raw, "$")
}

type validator struct {
	catalog catalog.Catalog
	lenient bool
	logger  *slog.Logger
	warn    rate.Sometimes
}

func (v *validator) node(raw any, path string) (Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errdefs.Validation("condition node must be an object").
			WithDetail("path", path).
			WithDetail("actual", typeName(raw))
	}

	// Shorthand discriminators take priority over the typed dialect.
	if children, ok := obj["and"]; ok {
		return v.boolNode(children, path+".and", func(ns []Node) Node { return &And{Children: ns} })
	}
	if children, ok := obj["or"]; ok {
		return v.boolNode(children, path+".or", func(ns []Node) Node { return &Or{Children: ns} })
	}
	if child, ok := obj["not"]; ok {
		return v.notNode(child, path+".not")
	}

	if typ, ok := obj["type"].(string); ok {
		switch typ {
		case "AND":
			return v.boolNode(obj["conditions"], path+".conditions", func(ns []Node) Node { return &And{Children: ns} })
		case "OR":
			return v.boolNode(obj["conditions"], path+".conditions", func(ns []Node) Node { return &Or{Children: ns} })
		case "NOT":
			return v.notNode(obj["condition"], path+".condition")
		}
	}

	if _, ok := obj["field"]; ok {
		return v.leaf(obj, path)
	}

	return nil, errdefs.Validation("condition node has no recognized shape: expected and/or/not, type AND|OR|NOT, or a field predicate").
		WithDetail("path", path)
}

func (v *validator) boolNode(children any, path string, build func([]Node) Node) (Node, error) {
	seq, ok := children.([]any)
	if !ok {
		return nil, errdefs.Validation("boolean composition requires an array of child conditions").
			WithDetail("path", path).
			WithDetail("actual", typeName(children))
	}
	if len(seq) == 0 {
		return nil, errdefs.Validation("boolean composition must have at least one child").
			WithDetail("path", path)
	}

	nodes := make([]Node, 0, len(seq))
	for i, child := range seq {
		n, err := v.node(child, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return build(nodes), nil
}

func (v *validator) notNode(child any, path string) (Node, error) {
	if _, isSeq := child.([]any); isSeq {
		return nil, errdefs.Validation("NOT takes exactly one child condition, not an array").
			WithDetail("path", path)
	}
	if child == nil {
		return nil, errdefs.Validation("NOT requires a child condition").
			WithDetail("path", path)
	}
	n, err := v.node(child, path)
	if err != nil {
		return nil, err
	}
	return &Not{Child: n}, nil
}

func (v *validator) leaf(obj map[string]any, path string) (Node, error) {
	fieldKey, err := fieldKeyOf(obj["field"], path)
	if err != nil {
		return nil, err
	}

	opRaw, ok := obj["op"]
	if !ok {
		opRaw, ok = obj["operator"] // legacy key
	}
	opStr, isStr := opRaw.(string)
	if !ok || !isStr || opStr == "" {
		return nil, errdefs.Validation("leaf condition requires an operator").
			WithDetail("path", path).
			WithDetail("field", fieldKey)
	}
	op := catalog.Operator(opStr)

	value, hasValue := obj["value"]
	if !hasValue {
		return nil, errdefs.Validation("leaf condition requires an explicit value key (value may be null)").
			WithDetail("path", path).
			WithDetail("field", fieldKey)
	}

	leaf := &Leaf{FieldKey: fieldKey, Op: op, Value: value}

	entry, known := v.catalog[fieldKey]
	if !known {
		if !v.lenient {
			return nil, errdefs.Validation("unknown field").
				WithDetail("path", path).
				WithDetail("field", fieldKey)
		}
		// Runtime-resolved field: accepted without deep validation.
		v.warn.Do(func() {
			v.logger.Warn("field not in catalog, accepting without validation",
				"field", fieldKey, "path", path)
		})
		return leaf, nil
	}

	if !entry.IsActive {
		return nil, errdefs.Validation("field is inactive").
			WithDetail("path", path).
			WithDetail("field", fieldKey)
	}

	if !entry.Allows(op) {
		return nil, errdefs.Validation("operator not allowed for field").
			WithDetail("path", path).
			WithDetail("field", fieldKey).
			WithDetail("op", string(op)).
			WithDetail("allowed", entry.AllowedSet())
	}

	if err := v.checkValue(entry, op, value, path); err != nil {
		return nil, err
	}

	if op.MultiValue() && !entry.MultiValueAllowed {
		return nil, errdefs.Validation("field does not allow multi-value operators").
			WithDetail("path", path).
			WithDetail("field", fieldKey).
			WithDetail("op", string(op))
	}

	return leaf, nil
}

func (v *validator) checkValue(entry catalog.Entry, op catalog.Operator, value any, path string) error {
	switch {
	case op == catalog.OpBetween:
		seq, ok := value.([]any)
		if !ok || len(seq) != 2 {
			return errdefs.Validation("BETWEEN requires exactly 2 values").
				WithDetail("path", path).
				WithDetail("field", entry.Key).
				WithDetail("actual", lengthOrType(value))
		}
		for i, elem := range seq {
			if err := v.checkScalar(entry, elem, fmt.Sprintf("%s.value[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case op.MultiValue():
		seq, ok := value.([]any)
		if !ok {
			return errdefs.Validation("IN/NOT_IN require an array value").
				WithDetail("path", path).
				WithDetail("field", entry.Key).
				WithDetail("actual", typeName(value))
		}
		for i, elem := range seq {
			if err := v.checkScalar(entry, elem, fmt.Sprintf("%s.value[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	default:
		if _, isSeq := value.([]any); isSeq {
			return errdefs.Validation("operator takes a single value, not an array").
				WithDetail("path", path).
				WithDetail("field", entry.Key).
				WithDetail("op", string(op))
		}
		return v.checkScalar(entry, value, path)
	}
}

// checkScalar verifies one value against the field's declared data type.
// Null is always accepted: nullable comparisons are resolved at runtime.
func (v *validator) checkScalar(entry catalog.Entry, value any, path string) error {
	if value == nil {
		return nil
	}

	ok := false
	switch entry.DataType {
	case catalog.TypeString, catalog.TypeEnum, catalog.TypeDate:
		// DATE is the ISO-8601 lexical form; the format is not deep-parsed.
		_, ok = value.(string)
	case catalog.TypeNumber:
		switch value.(type) {
		case json.Number, float64, int, int64:
			ok = true
		}
	case catalog.TypeBoolean:
		_, ok = value.(bool)
	}

	if !ok {
		return errdefs.Validation("value does not match field data type").
			WithDetail("path", path).
			WithDetail("field", entry.Key).
			WithDetail("expected", string(entry.DataType)).
			WithDetail("actual", typeName(value))
	}
	return nil
}

func fieldKeyOf(raw any, path string) (string, error) {
	switch f := raw.(type) {
	case string:
		if f != "" {
			return f, nil
		}
	case map[string]any:
		if key, ok := f["field_key"].(string); ok && key != "" {
			return key, nil
		}
	}
	return "", errdefs.Validation("field must be a key string or an object with field_key").
		WithDetail("path", path)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func lengthOrType(v any) string {
	if seq, ok := v.([]any); ok {
		return fmt.Sprintf("array of %d", len(seq))
	}
	return typeName(v)
}
