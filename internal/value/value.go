// Package value implements the loosely-typed JSON model shared by event
// properties, message payloads and stored catalogs.
package value

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindArray
	KindDictionary
)

// Value is a tagged union over JSON scalar and collection types.
// The zero value is null.
type Value struct {
	kind Kind

	boolVal   bool
	intVal    int64
	doubleVal float64
	strVal    string
	arrVal    []Value
	dictVal   map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, intVal: i} }

// Double wraps a floating point number.
func Double(f float64) Value { return Value{kind: KindDouble, doubleVal: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, strVal: s} }

// Array wraps a sequence of values.
func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arrVal: arr}
}

// Dictionary wraps a string-keyed mapping of values.
func Dictionary(m map[string]Value) Value {
	d := make(map[string]Value, len(m))
	for k, v := range m {
		d[k] = v
	}
	return Value{kind: KindDictionary, dictVal: d}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolValue returns the wrapped boolean and whether the value holds one.
func (v Value) BoolValue() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

// IntValue returns the wrapped integer and whether the value holds one.
func (v Value) IntValue() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.intVal, true
}

// DoubleValue returns the wrapped float and whether the value holds one.
// Integers are widened so numeric callers see one type.
func (v Value) DoubleValue() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.doubleVal, true
	case KindInt:
		return float64(v.intVal), true
	default:
		return 0, false
	}
}

// StringValue returns the wrapped string and whether the value holds one.
func (v Value) StringValue() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.strVal, true
}

// ArrayValue returns a copy of the wrapped array and whether the value holds one.
func (v Value) ArrayValue() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]Value, len(v.arrVal))
	copy(out, v.arrVal)
	return out, true
}

// DictionaryValue returns a copy of the wrapped dictionary and whether the
// value holds one.
func (v Value) DictionaryValue() (map[string]Value, bool) {
	if v.kind != KindDictionary {
		return nil, false
	}
	out := make(map[string]Value, len(v.dictVal))
	for k, item := range v.dictVal {
		out[k] = item
	}
	return out, true
}

// String renders scalars bare (no JSON quoting); collections render as
// compact JSON. The filter engine compares attribute values in this form.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.boolVal)
	case KindInt:
		return strconv.FormatInt(v.intVal, 10)
	case KindDouble:
		return strconv.FormatFloat(v.doubleVal, 'f', -1, 64)
	case KindString:
		return v.strVal
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Equal reports structural equality. Int and double of the same numeric
// magnitude are distinct kinds and therefore not equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindDouble:
		return v.doubleVal == other.doubleVal
	case KindString:
		return v.strVal == other.strVal
	case KindArray:
		if len(v.arrVal) != len(other.arrVal) {
			return false
		}
		for i := range v.arrVal {
			if !v.arrVal[i].Equal(other.arrVal[i]) {
				return false
			}
		}
		return true
	case KindDictionary:
		if len(v.dictVal) != len(other.dictVal) {
			return false
		}
		for k, item := range v.dictVal {
			o, ok := other.dictVal[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// Hash returns a structural hash consistent with Equal.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	v.hashInto(h)
	return h.Sum64()
}

type hasher interface {
	Write(p []byte) (int, error)
}

func (v Value) hashInto(h hasher) {
	h.Write([]byte{byte(v.kind)})
	switch v.kind {
	case KindBool:
		if v.boolVal {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindInt:
		var buf [8]byte
		u := uint64(v.intVal)
		for i := 0; i < 8; i++ {
			buf[i] = byte(u >> (8 * i))
		}
		h.Write(buf[:])
	case KindDouble:
		var buf [8]byte
		u := math.Float64bits(v.doubleVal)
		for i := 0; i < 8; i++ {
			buf[i] = byte(u >> (8 * i))
		}
		h.Write(buf[:])
	case KindString:
		h.Write([]byte(v.strVal))
	case KindArray:
		for _, item := range v.arrVal {
			item.hashInto(h)
		}
	case KindDictionary:
		keys := make([]string, 0, len(v.dictVal))
		for k := range v.dictVal {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			v.dictVal[k].hashInto(h)
		}
	}
}

// FromAny converts a decoded interface tree (as produced by encoding/json)
// into a Value. Unsupported types become null.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		// JSON numbers decode as float64; keep whole numbers integral.
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1<<53 {
			return Int(int64(t))
		}
		return Double(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Value{kind: KindArray, arrVal: items}
	case map[string]any:
		d := make(map[string]Value, len(t))
		for k, item := range t {
			d[k] = FromAny(item)
		}
		return Value{kind: KindDictionary, dictVal: d}
	default:
		return Null()
	}
}

// ToAny converts the value back into a plain interface tree.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindInt:
		return v.intVal
	case KindDouble:
		return v.doubleVal
	case KindString:
		return v.strVal
	case KindArray:
		out := make([]any, len(v.arrVal))
		for i, item := range v.arrVal {
			out[i] = item.ToAny()
		}
		return out
	case KindDictionary:
		out := make(map[string]any, len(v.dictVal))
		for k, item := range v.dictVal {
			out[k] = item.ToAny()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	*v = FromAny(raw)
	return nil
}

// Map converts a map of interface values in one call.
func Map(raw map[string]any) map[string]Value {
	out := make(map[string]Value, len(raw))
	for k, item := range raw {
		out[k] = FromAny(item)
	}
	return out
}
