package condition

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasrisk/rulegate/pkg/catalog"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		"amount": {
			Key:              "amount",
			DataType:         catalog.TypeNumber,
			AllowedOperators: []catalog.Operator{catalog.OpGT, catalog.OpLT, catalog.OpBetween, catalog.OpEQ},
			IsActive:         true,
		},
		"country": {
			Key:               "country",
			DataType:          catalog.TypeString,
			AllowedOperators:  []catalog.Operator{catalog.OpEQ, catalog.OpIn, catalog.OpNotIn},
			MultiValueAllowed: true,
			IsActive:          true,
		},
		"mcc": {
			Key:               "mcc",
			DataType:          catalog.TypeString,
			AllowedOperators:  []catalog.Operator{catalog.OpIn},
			MultiValueAllowed: false,
			IsActive:          true,
		},
		"legacy_flag": {
			Key:              "legacy_flag",
			DataType:         catalog.TypeBoolean,
			AllowedOperators: []catalog.Operator{catalog.OpEQ},
			IsActive:         false,
		},
		"card_present": {
			Key:              "card_present",
			DataType:         catalog.TypeBoolean,
			AllowedOperators: []catalog.Operator{catalog.OpEQ},
			IsActive:         true,
		},
		"created_date": {
			Key:              "created_date",
			DataType:         catalog.TypeDate,
			AllowedOperators: []catalog.Operator{catalog.OpGTE, catalog.OpLTE},
			IsActive:         true,
		},
	}
}

func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func mustValidate(t *testing.T, raw string) Node {
	t.Helper()
	n, err := Validate(decode(t, raw), testCatalog(), false)
	require.NoError(t, err)
	return n
}

func mustFail(t *testing.T, raw string, lenient bool) *errdefs.Error {
	t.Helper()
	_, err := Validate(decode(t, raw), testCatalog(), lenient)
	require.Error(t, err)
	var domainErr *errdefs.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, errdefs.KindValidation, domainErr.Kind)
	return domainErr
}

func TestValidate_ShorthandLeaf(t *testing.T) {
	n := mustValidate(t, `{"field":"amount","op":"GT","value":3000}`)

	leaf, ok := n.(*Leaf)
	require.True(t, ok)
	assert.Equal(t, "amount", leaf.FieldKey)
	assert.Equal(t, catalog.OpGT, leaf.Op)
	assert.Equal(t, json.Number("3000"), leaf.Value)
}

func TestValidate_LegacyOperatorKey(t *testing.T) {
	n := mustValidate(t, `{"field":"amount","operator":"GT","value":1}`)
	assert.Equal(t, catalog.OpGT, n.(*Leaf).Op)
}

func TestValidate_FieldObjectShape(t *testing.T) {
	n := mustValidate(t, `{"field":{"field_key":"amount"},"op":"GT","value":1}`)
	assert.Equal(t, "amount", n.(*Leaf).FieldKey)

	err := mustFail(t, `{"field":42,"op":"GT","value":1}`, false)
	assert.Contains(t, err.Message, "field_key")
}

func TestValidate_TypedDialect(t *testing.T) {
	n := mustValidate(t, `{
		"type": "AND",
		"conditions": [
			{"field":"amount","op":"GT","value":100},
			{"type":"NOT","condition":{"field":"country","op":"EQ","value":"SE"}}
		]
	}`)

	and, ok := n.(*And)
	require.True(t, ok)
	require.Len(t, and.Children, 2)
	_, ok = and.Children[1].(*Not)
	assert.True(t, ok)
}

func TestValidate_ShorthandWinsOverTyped(t *testing.T) {
	// A node carrying both dialects dispatches on the shorthand key.
	n := mustValidate(t, `{
		"type": "NOT",
		"or": [{"field":"amount","op":"GT","value":1}]
	}`)
	_, ok := n.(*Or)
	assert.True(t, ok)
}

func TestValidate_EmptyComposition(t *testing.T) {
	err := mustFail(t, `{"and":[]}`, false)
	assert.Equal(t, "$.and", err.Details["path"])

	err = mustFail(t, `{"or":[]}`, false)
	assert.Equal(t, "$.or", err.Details["path"])

	mustValidate(t, `{"and":[{"field":"amount","op":"GT","value":1}]}`)
}

func TestValidate_NotRejectsArray(t *testing.T) {
	err := mustFail(t, `{"not":[{"field":"amount","op":"GT","value":1}]}`, false)
	assert.Contains(t, err.Message, "exactly one child")
}

func TestValidate_NonObjectNode(t *testing.T) {
	err := mustFail(t, `{"and":["oops"]}`, false)
	assert.Equal(t, "$.and[0]", err.Details["path"])
	assert.Equal(t, "string", err.Details["actual"])
}

func TestValidate_UnrecognizedShape(t *testing.T) {
	err := mustFail(t, `{"neither":"nor"}`, false)
	assert.Equal(t, "$", err.Details["path"])
}

func TestValidate_MissingLeafKeys(t *testing.T) {
	err := mustFail(t, `{"field":"amount","value":1}`, false)
	assert.Contains(t, err.Message, "operator")

	err = mustFail(t, `{"field":"amount","op":"GT"}`, false)
	assert.Contains(t, err.Message, "value")
}

func TestValidate_NullValueAccepted(t *testing.T) {
	mustValidate(t, `{"field":"amount","op":"EQ","value":null}`)
}

func TestValidate_UnknownField_StrictVsLenient(t *testing.T) {
	raw := `{"field":"runtime_only","op":"GT","value":1}`

	err := mustFail(t, raw, false)
	assert.Equal(t, "runtime_only", err.Details["field"])

	n, lenientErr := Validate(decode(t, raw), testCatalog(), true)
	require.NoError(t, lenientErr)
	assert.Equal(t, "runtime_only", n.(*Leaf).FieldKey)
}

func TestValidate_InactiveFieldFailsBothModes(t *testing.T) {
	raw := `{"field":"legacy_flag","op":"EQ","value":true}`
	mustFail(t, raw, false)
	mustFail(t, raw, true)
}

func TestValidate_OperatorAllowList(t *testing.T) {
	err := mustFail(t, `{"field":"amount","op":"IN","value":[1]}`, false)
	assert.Equal(t, "IN", err.Details["op"])
	assert.Equal(t, []string{"BETWEEN", "EQ", "GT", "LT"}, err.Details["allowed"])
}

func TestValidate_BetweenArity(t *testing.T) {
	err := mustFail(t, `{"field":"amount","op":"BETWEEN","value":[10]}`, false)
	assert.Contains(t, err.Message, "exactly 2")

	mustValidate(t, `{"field":"amount","op":"BETWEEN","value":[10,100]}`)
}

func TestValidate_MultiValueGuard(t *testing.T) {
	// IN is in mcc's allow-list, but mcc does not allow multi-value: both
	// constraints must hold independently.
	err := mustFail(t, `{"field":"mcc","op":"IN","value":["5411"]}`, false)
	assert.Contains(t, err.Message, "multi-value")

	mustValidate(t, `{"field":"country","op":"IN","value":["SE","NO"]}`)
}

func TestValidate_SingleValueOperatorRejectsArray(t *testing.T) {
	err := mustFail(t, `{"field":"amount","op":"GT","value":[1,2]}`, false)
	assert.Contains(t, err.Message, "single value")
}

func TestValidate_ValueTypeChecks(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"number accepts integer", `{"field":"amount","op":"GT","value":3000}`, true},
		{"number accepts float", `{"field":"amount","op":"GT","value":12.5}`, true},
		{"number rejects string", `{"field":"amount","op":"GT","value":"3000"}`, false},
		{"string rejects number", `{"field":"country","op":"EQ","value":7}`, false},
		{"boolean accepts bool", `{"field":"card_present","op":"EQ","value":true}`, true},
		{"boolean rejects string", `{"field":"card_present","op":"EQ","value":"true"}`, false},
		{"date accepts iso string", `{"field":"created_date","op":"GTE","value":"2026-01-01"}`, true},
		{"date rejects number", `{"field":"created_date","op":"GTE","value":20260101}`, false},
		{"in elements type checked", `{"field":"country","op":"IN","value":["SE",7]}`, false},
		{"between elements type checked", `{"field":"amount","op":"BETWEEN","value":[10,"x"]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(decode(t, tc.raw), testCatalog(), false)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_PathContext(t *testing.T) {
	err := mustFail(t, `{
		"and": [
			{"field":"amount","op":"GT","value":1},
			{"not":{"field":"amount","op":"GT","value":"bad"}}
		]
	}`, false)
	assert.Equal(t, "$.and[1].not", err.Details["path"])
}

func TestAsValue_ShorthandRendering(t *testing.T) {
	n := mustValidate(t, `{
		"type": "OR",
		"conditions": [
			{"field":"amount","op":"GT","value":3000},
			{"not":{"field":"country","op":"EQ","value":"SE"}}
		]
	}`)

	v := n.AsValue()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"or":[{"field":"amount","op":"GT","value":3000},{"not":{"field":"country","op":"EQ","value":"SE"}}]}`,
		string(b))
}
