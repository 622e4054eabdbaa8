//go:build property
// +build property

package canonical

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genValue builds JSON-like values: strings, ints, bools, and shallow
// maps/slices thereof.
func genValue() gopter.Gen {
	scalar := gen.OneGenOf(
		gen.AlphaString().Map(func(s string) any { return s }),
		gen.Int64().Map(func(i int64) any { return i }),
		gen.Bool().Map(func(b bool) any { return b }),
	)
	return gen.OneGenOf(
		scalar,
		gen.MapOf(gen.AlphaString(), scalar).Map(func(m map[string]any) any { return m }),
		gen.SliceOf(scalar).Map(func(s []any) any { return s }),
	)
}

func TestCanonicalizeIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalize(canonicalize(x)) == canonicalize(x)", prop.ForAll(
		func(keys []string, vals []int64) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(vals); i++ {
				obj[keys[i]] = vals[i]
			}
			once, err1 := Canonicalize(obj)
			if err1 != nil {
				return false
			}
			twice, err2 := Canonicalize(once)
			if err2 != nil {
				return false
			}
			b1, _ := MarshalCanonical(once)
			b2, _ := MarshalCanonical(twice)
			return bytes.Equal(b1, b2)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int64()),
	))

	properties.Property("serialization is deterministic", prop.ForAll(
		func(v any) bool {
			b1, err1 := MarshalCanonical(v)
			b2, err2 := MarshalCanonical(v)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return bytes.Equal(b1, b2) && ChecksumBytes(b1) == ChecksumBytes(b2)
		},
		genValue(),
	))

	properties.TestingRun(t)
}
