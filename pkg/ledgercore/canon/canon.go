// Package canon implements deterministic canonicalization of event
// payloads: the byte-exact form two semantically equal payloads must
// serialize to identically, regardless of author or language.
//
// Map keys are sorted and array order is preserved, null-valued keys are
// dropped before serialization, and a top-level __canon_v marker is
// merged into the sorted key set rather than special-cased as a prefix.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the canonicalization ruleset version; it is carried inside
// every canonicalized payload as __canon_v so that a future rule change
// cannot silently reinterpret old events.
const Version = 1

// Canonicalize produces the canonical byte representation of a payload
// tree built from maps, slices, strings, json.Number, bool, and nil.
//
// Rules (per the ledger's canonicalization contract):
//   - keys with null values are dropped from mappings, at every nesting
//     level, before serialization; null elements of a sequence are kept.
//   - mapping keys are emitted in lexicographic byte order (UTF-8).
//   - sequences preserve input order.
//   - a top-level "__canon_v" key is merged in before sorting; it is not
//     special-cased as a string prefix.
func Canonicalize(payload map[string]interface{}) ([]byte, error) {
	pruned, _ := pruneNulls(payload).(map[string]interface{})
	if pruned == nil {
		pruned = map[string]interface{}{}
	}
	pruned["__canon_v"] = Version
	return marshalCanonical(pruned)
}

// CanonicalizeJSON re-derives canonical bytes from an already-serialized
// JSON object, used when replaying a stored event's payload column for
// integrity verification. json.Number is used for decoding so that any
// bare integer literal round-trips without passing through float64.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: decode payload: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("canon: payload root must be an object")
	}
	return Canonicalize(m)
}

// pruneNulls recursively drops nil map values. Array elements are left
// untouched: the null-dropping rule applies to mapping keys, and dropping
// elements would silently shrink a semantically ordered sequence.
func pruneNulls(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			if val == nil {
				continue
			}
			out[k] = pruneNulls(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = pruneNulls(e)
		}
		return out
	default:
		return vv
	}
}

// marshalCanonical serializes v with sorted map keys (encoding/json already
// sorts map[string]T keys at every level) and without HTML escaping, which
// would otherwise corrupt statements containing '<', '>', or '&'.
func marshalCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}
	// Encoder.Encode appends a trailing newline; the canonical form has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ToPayloadMap converts a JSON-tagged struct into the map form Canonicalize
// expects, by round-tripping it through the standard encoder/decoder so
// that json.Number is preserved for anything the caller already typed as a
// decimal string (it stays a string) or a plain integer.
func ToPayloadMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("canon: decode payload: %w", err)
	}
	return m, nil
}
