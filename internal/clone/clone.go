// Package clone provides the deep-clone and structural-equality pair that
// context snapshots and listener change-detection require. The two
// primitives must agree on what "equal" means or change notifications go
// spurious or missing; they are implemented together for that reason.
package clone

import "encoding/json"

// Clone returns a deep copy of v. Primitives are returned unchanged; maps,
// slices, and structs are copied via a JSON round-trip, which is the
// simplest encoding that agrees with Equal below on every value this
// runtime passes through context and event data (schema-validated JSON-
// compatible shapes — no channels, funcs, or cyclic graphs).
func Clone(v any) any {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	}

	b, err := json.Marshal(v)
	if err != nil {
		// Not JSON-representable; the caller violated the schema
		// contract that guarantees JSON-compatible context/event
		// shapes. Returning v unchanged is safer than panicking
		// inside a library deep-clone call.
		return v
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		// A nil map or slice encodes as null; returning v keeps its
		// dynamic type so callers' type assertions still hold.
		return v
	}
	return out
}

// Equal reports whether a and b are structurally equal: for the
// JSON-compatible value space this runtime operates over (maps, slices,
// strings, numbers, bools, nil), structural equality is serialization
// equality, since Clone above normalizes both sides through the same
// round-trip.
func Equal(a, b any) bool {
	an, aok := normalize(a)
	bn, bok := normalize(b)
	if !aok || !bok {
		return false
	}
	return string(an) == string(bn)
}

func normalize(v any) ([]byte, bool) {
	b, err := json.Marshal(Clone(v))
	if err != nil {
		return nil, false
	}
	return b, true
}
