// Package canonical provides deterministic JSON serialization for rule-set
// artifacts. Map keys are sorted lexicographically by UTF-8 bytes at every
// depth, arrays preserve input order, and scalars pass through unchanged
// (numbers are preserved exactly via json.Number). Two structurally equal
// inputs always serialize to byte-identical output; the checksum and the
// publish pipeline depend on that guarantee.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ChecksumPrefix is the literal prefix of every artifact checksum.
const ChecksumPrefix = "sha256:"

// Canonicalize converts v into its generic canonical form: maps with sorted
// keys at every level, []any sequences, json.Number scalars. Structs are
// accepted and pass through an intermediate JSON encode so their tags are
// respected. Pure function, no side effects.
func Canonicalize(v any) (any, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: intermediate decode failed: %w", err)
	}
	return generic, nil
}

// MarshalCanonical returns the compact canonical JSON encoding of v:
// UTF-8, no BOM, sorted keys, `,`/`:` separators with no surrounding
// whitespace, HTML escaping disabled so non-ASCII is emitted literally.
func MarshalCanonical(v any) ([]byte, error) {
	generic, err := Canonicalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCompact(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalPretty returns the canonical encoding with 2-space indentation,
// for human and log consumption. Nothing in the pipeline hashes this form.
func MarshalPretty(v any) (string, error) {
	compact, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return "", fmt.Errorf("canonical: indent failed: %w", err)
	}
	return out.String(), nil
}

// Checksum returns the content checksum of the canonical encoding of v,
// formatted as "sha256:" + 64 lowercase hex characters.
func Checksum(v any) (string, error) {
	b, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return ChecksumBytes(b), nil
}

// ChecksumBytes computes the checksum over exact bytes.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return ChecksumPrefix + hex.EncodeToString(sum[:])
}

func encodeCompact(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case string:
		return encodeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCompact(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeCompact(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		// Canonicalize produces only the types above; anything else is a bug.
		return fmt.Errorf("canonical: unexpected value type %T", v)
	}
}

// encodeString writes a JSON string without HTML escaping so that
// non-ASCII and <, >, & survive literally.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canonical: string encode failed: %w", err)
	}
	// json.Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}
