package record

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the JSON type held by a Value.
type Kind uint8

const (
	// Absent marks a field that does not exist on a record. It is what
	// Record.Get returns for a missing key and is never stored.
	Absent Kind = iota
	Null
	String
	Number
	Bool
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one JSON value. Numbers keep their literal text so that a record
// round-trips byte-for-byte through a snapshot.
type Value struct {
	kind Kind
	text string // String payload or Number literal
	b    bool
	arr  []Value
	obj  *Record
}

// NullValue returns the JSON null.
func NullValue() Value { return Value{kind: Null} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: String, text: s} }

// NumberValue wraps a JSON number literal such as "42" or "1.5e3".
func NumberValue(lit string) Value { return Value{kind: Number, text: lit} }

// IntValue is a convenience for integral numbers.
func IntValue(n int64) Value { return Value{kind: Number, text: strconv.FormatInt(n, 10)} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// ArrayValue wraps the given elements.
func ArrayValue(elems ...Value) Value {
	return Value{kind: Array, arr: append([]Value(nil), elems...)}
}

// ObjectValue wraps a nested object.
func ObjectValue(r Record) Value {
	c := r.Clone()
	return Value{kind: Object, obj: &c}
}

// Kind reports the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v stands for a missing field.
func (v Value) IsAbsent() bool { return v.kind == Absent }

// Str returns the string payload when v is a JSON string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.text, true
}

// Equal reports structural equality. Numbers compare by exact value, objects
// ignore key order, and null is distinct from both absent and "".
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Absent, Null:
		return true
	case String:
		return v.text == o.text
	case Bool:
		return v.b == o.b
	case Number:
		return numbersEqual(v.text, o.text)
	case Array:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		return v.obj.Equal(*o.obj)
	}
	return false
}

func numbersEqual(a, b string) bool {
	if a == b {
		return true
	}
	ra, ok := new(big.Rat).SetString(a)
	if !ok {
		return false
	}
	rb, ok := new(big.Rat).SetString(b)
	if !ok {
		return false
	}
	return ra.Cmp(rb) == 0
}

// JSON renders v as compact JSON. Absent renders as an empty string.
func (v Value) JSON() string {
	if v.kind == Absent {
		return ""
	}
	var buf bytes.Buffer
	_ = writeValue(&buf, v)
	return buf.String()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := newDecoder(data)
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// canonical writes a representation that is identical for Equal values.
func (v Value) canonical(sb *strings.Builder) {
	switch v.kind {
	case Absent:
		sb.WriteString("~")
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(v.b))
	case String:
		sb.WriteString(strconv.Quote(v.text))
	case Number:
		if r, ok := new(big.Rat).SetString(v.text); ok {
			sb.WriteString("#" + r.RatString())
		} else {
			sb.WriteString("#" + v.text)
		}
	case Array:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.canonical(sb)
		}
		sb.WriteByte(']')
	case Object:
		keys := append([]string(nil), v.obj.keys...)
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			v.obj.fields[k].canonical(sb)
		}
		sb.WriteByte('}')
	}
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case Absent, Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Number:
		buf.WriteString(v.text)
	case String:
		return writeString(buf, v.text)
	case Array:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		return v.obj.write(buf)
	}
	return nil
}

// writeString encodes s without HTML escaping so non-ASCII text and markup
// survive unchanged.
func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode appends '\n'
	return nil
}
