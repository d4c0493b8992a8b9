// Copyright 2025 The Flowsmith Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package document models engine-definition documents as an explicit
// tagged variant. Templates arrive as untrusted nested JSON; representing
// them as a closed set of kinds keeps traversal total and lets the
// substitution engine enforce a recursion depth bound instead of trusting
// arbitrarily deep input.
package document

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MaxDepth is the maximum nesting depth accepted when decoding or
// traversing a document. Deeper input is rejected as malformed.
const MaxDepth = 64

// ErrTooDeep is returned when a document exceeds MaxDepth.
var ErrTooDeep = fmt.Errorf("document exceeds maximum nesting depth of %d", MaxDepth)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindNull is the JSON null value.
	KindNull Kind = iota
	// KindString is a JSON string.
	KindString
	// KindNumber is a JSON number, held as float64.
	KindNumber
	// KindBool is a JSON boolean.
	KindBool
	// KindSequence is a JSON array.
	KindSequence
	// KindMapping is a JSON object.
	KindMapping
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is one node of an engine-definition document.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	seq  []Value
	mp   map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Sequence returns an array value holding the given elements.
func Sequence(elems ...Value) Value { return Value{kind: KindSequence, seq: elems} }

// Mapping returns an object value holding the given entries.
func Mapping(entries map[string]Value) Value {
	if entries == nil {
		entries = map[string]Value{}
	}
	return Value{kind: KindMapping, mp: entries}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload. Valid only for KindString.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload. Valid only for KindNumber.
func (v Value) Num() float64 { return v.num }

// BoolVal returns the boolean payload. Valid only for KindBool.
func (v Value) BoolVal() bool { return v.b }

// Seq returns the element slice. Valid only for KindSequence.
func (v Value) Seq() []Value { return v.seq }

// Map returns the entry map. Valid only for KindMapping.
func (v Value) Map() map[string]Value { return v.mp }

// Get returns the entry for key in a mapping, and whether it exists.
// Returns false for non-mapping values.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	e, ok := v.mp[key]
	return e, ok
}

// Stringify renders a scalar value the way it appears when embedded inside
// a larger string during substitution. Numbers drop a trailing ".0" so an
// integer binding reads naturally.
func (v Value) Stringify() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.mp) != len(other.mp) {
			return false
		}
		for k, e := range v.mp {
			o, ok := other.mp[k]
			if !ok || !e.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindSequence:
		seq := make([]Value, len(v.seq))
		for i, e := range v.seq {
			seq[i] = e.Clone()
		}
		return Value{kind: KindSequence, seq: seq}
	case KindMapping:
		mp := make(map[string]Value, len(v.mp))
		for k, e := range v.mp {
			mp[k] = e.Clone()
		}
		return Value{kind: KindMapping, mp: mp}
	default:
		return v
	}
}

// FromAny converts a decoded-JSON Go value (string, float64, bool, nil,
// []any, map[string]any, plus the integer types produced by callers) into
// a Value. Returns ErrTooDeep when the input nests past MaxDepth.
func FromAny(x any) (Value, error) {
	return fromAny(x, 0)
}

func fromAny(x any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, ErrTooDeep
	}

	switch t := x.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case []any:
		seq := make([]Value, len(t))
		for i, e := range t {
			v, err := fromAny(e, depth+1)
			if err != nil {
				return Value{}, err
			}
			seq[i] = v
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case map[string]any:
		mp := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := fromAny(e, depth+1)
			if err != nil {
				return Value{}, err
			}
			mp[k] = v
		}
		return Value{kind: KindMapping, mp: mp}, nil
	default:
		return Value{}, fmt.Errorf("unsupported document value of type %T", x)
	}
}

// ToAny converts a Value back to the generic Go representation used by
// encoding/json.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.ToAny()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.mp))
		for k, e := range v.mp {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}

// Parse decodes raw JSON into a Value, enforcing the depth bound.
func Parse(raw []byte) (Value, error) {
	var x any
	if err := json.Unmarshal(raw, &x); err != nil {
		return Value{}, fmt.Errorf("invalid document: %w", err)
	}
	return FromAny(x)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(raw []byte) error {
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
