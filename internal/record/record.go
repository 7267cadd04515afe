// Package record defines the normalized record model shared by the loader,
// the diff engine and the snapshot stores.
//
// A Record is an ordered JSON object: field order from the source line is
// preserved on read and reproduced on write, so snapshots stay diffable and
// readable. Values are compared structurally (see Value.Equal).
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Well-known field names.
const (
	FieldID          = "id"
	FieldObservedAt  = "observed_at"
	FieldContentHash = "content_hash"
)

// RequiredFields lists the fields every normalized record must carry.
var RequiredFields = []string{"schema", "source", "id", "type", "title", "url", "observed_at"}

// Volatile reports whether a field is excluded from field-level comparison.
func Volatile(field string) bool {
	return field == FieldObservedAt || field == FieldContentHash
}

var (
	// ErrNotObject is returned when a JSON document is valid but not an object.
	ErrNotObject = errors.New("record: value is not a JSON object")
	// ErrTrailingData is returned when bytes follow the top-level object.
	ErrTrailingData = errors.New("record: trailing data after object")
)

// Record is an ordered mapping from field name to Value.
// The zero value is an empty record ready to use.
type Record struct {
	keys   []string
	fields map[string]Value
}

// Set stores v under key. A key that already exists keeps its position.
// Setting an Absent value deletes the key.
func (r *Record) Set(key string, v Value) {
	if v.kind == Absent {
		r.Delete(key)
		return
	}
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

// Delete removes key if present.
func (r *Record) Delete(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Get returns the value of key, or an Absent value.
func (r Record) Get(key string) Value {
	return r.fields[key]
}

// Has reports whether key is present (null counts as present).
func (r Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Keys returns the field names in insertion order.
func (r Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// ID returns the identity value of the record.
func (r Record) ID() Value { return r.Get(FieldID) }

// IdentityKey returns a string that is equal for two records exactly when
// their ids are Equal. It is meant for map keys.
func (r Record) IdentityKey() string {
	return KeyOf(r.ID())
}

// KeyOf returns the canonical map key for v.
func KeyOf(v Value) string {
	var sb strings.Builder
	v.canonical(&sb)
	return sb.String()
}

// ContentHash returns the content fingerprint, or "" when the record has
// none or it is not a string.
func (r Record) ContentHash() string {
	s, _ := r.Get(FieldContentHash).Str()
	return s
}

// Clone returns a deep-enough copy: the field list and map are new, values
// are immutable once built.
func (r Record) Clone() Record {
	out := Record{
		keys:   append([]string(nil), r.keys...),
		fields: make(map[string]Value, len(r.fields)),
	}
	for k, v := range r.fields {
		out.fields[k] = v
	}
	return out
}

// Equal reports whether both records hold the same fields with Equal values,
// regardless of order.
func (r Record) Equal(o Record) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for k, v := range r.fields {
		ov, ok := o.fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the fields in insertion order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a single JSON object.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := Parse(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// AppendJSON writes the record fields followed by the given extra members,
// as one object. A record field named like an extra member is left out, so
// every key appears once.
func (r Record) AppendJSON(extra ...Member) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, k := range r.keys {
		if shadowed(k, extra) {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, k, r.fields[k]); err != nil {
			return nil, err
		}
		n++
	}
	for _, m := range extra {
		if n > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, m.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		buf.Write(m.Raw)
		n++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func shadowed(key string, extra []Member) bool {
	for _, m := range extra {
		if m.Key == key {
			return true
		}
	}
	return false
}

// Member is a pre-encoded object member used by AppendJSON.
type Member struct {
	Key string
	Raw json.RawMessage
}

func (r Record) write(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(buf, k, r.fields[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeMember(buf *bytes.Buffer, k string, v Value) error {
	if err := writeString(buf, k); err != nil {
		return err
	}
	buf.WriteByte(':')
	return writeValue(buf, v)
}

// Parse decodes exactly one JSON object from data. Leading and trailing
// whitespace is allowed; anything else after the object is ErrTrailingData.
func Parse(data []byte) (Record, error) {
	dec := newDecoder(data)
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, fmt.Errorf("record: empty input: %w", io.ErrUnexpectedEOF)
		}
		return Record{}, fmt.Errorf("record: invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Record{}, ErrNotObject
	}
	rec, err := decodeObject(dec)
	if err != nil {
		return Record{}, fmt.Errorf("record: invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Record{}, ErrTrailingData
	}
	return rec, nil
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: Object, obj: &rec}, nil
		case '[':
			return decodeArray(dec)
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(string(t)), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return NullValue(), nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// decodeObject reads members up to and including the closing brace.
func decodeObject(dec *json.Decoder) (Record, error) {
	var rec Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("object key is %T, want string", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Record{}, err
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	if rec.fields == nil {
		rec.fields = map[string]Value{}
	}
	return rec, nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	elems := make([]Value, 0)
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return Value{kind: Array, arr: elems}, nil
}
