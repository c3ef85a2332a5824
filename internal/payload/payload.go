// Package payload models decoded JSON values with object key order preserved.
//
// Decoded values are one of nil, bool, json.Number, string, []any or *Object.
// Backend error bodies are walked in document order ("the first field of
// detail"), which a plain map cannot express.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/nghyane/board-client/internal/json"
	"github.com/tidwall/gjson"
)

// ErrInvalid is returned by Parse when the input is not valid JSON.
var ErrInvalid = errors.New("payload: invalid json")

// Object is a JSON object that remembers the order its keys were set in.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Detail wraps text as {"detail": text}, the backend's single-field error shape.
func Detail(text string) *Object {
	return NewObject().Set("detail", text)
}

// Set stores value under key. An existing key keeps its position.
func (o *Object) Set(key string, value any) *Object {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// MarshalJSON encodes the object with keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("payload: encode %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes data into payload values.
func Parse(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ErrInvalid
	}
	return fromResult(gjson.ParseBytes(trimmed)), nil
}

// ParseString is Parse for text.
func ParseString(s string) (any, error) {
	return Parse([]byte(s))
}

func fromResult(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	}
	if r.IsArray() {
		items := make([]any, 0)
		r.ForEach(func(_, value gjson.Result) bool {
			items = append(items, fromResult(value))
			return true
		})
		return items
	}
	obj := NewObject()
	r.ForEach(func(key, value gjson.Result) bool {
		obj.Set(key.Str, fromResult(value))
		return true
	})
	return obj
}

// From converts arbitrary Go values into payload values. Structs and
// typed containers are round-tripped through JSON; payload values and
// scalars are returned unchanged.
func From(v any) any {
	switch t := v.(type) {
	case nil, bool, string, json.Number, *Object, []any:
		return v
	case map[string]any:
		return fromMap(t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return json.Number(fmt.Sprint(v))
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out, err := Parse(data)
	if err != nil {
		return nil
	}
	return out
}

func fromMap(m map[string]any) *Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := NewObject()
	for _, k := range keys {
		obj.Set(k, m[k])
	}
	return obj
}

// Lookup returns the field key of an object-like value. It understands
// *Object and string-keyed maps.
func Lookup(v any, key string) (any, bool) {
	switch t := v.(type) {
	case *Object:
		return t.Get(key)
	case map[string]any:
		val, ok := t[key]
		return val, ok
	case map[string]string:
		val, ok := t[key]
		return val, ok
	}
	return nil, false
}

// Path follows keys through nested objects.
func Path(v any, keys ...string) (any, bool) {
	cur := v
	for _, k := range keys {
		next, ok := Lookup(cur, k)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Values returns the field values of an object-like value in key order.
// Unordered maps are walked in sorted key order.
func Values(v any) ([]any, bool) {
	switch t := v.(type) {
	case *Object:
		out := make([]any, 0, t.Len())
		for _, k := range t.keys {
			out = append(out, t.values[k])
		}
		return out, true
	case map[string]any:
		obj := fromMap(t)
		return Values(obj)
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, t[k])
		}
		return out, true
	}
	return nil, false
}

// IsObject reports whether v is object-like.
func IsObject(v any) bool {
	switch v.(type) {
	case *Object, map[string]any, map[string]string:
		return v != nil && !isNilPointer(v)
	}
	return false
}

// IsArray reports whether v is a decoded or native slice.
func IsArray(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]any); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8
}

// Items returns the elements of an array-like value.
func Items(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	if !IsArray(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Empty reports whether v is an object or array without members.
func Empty(v any) bool {
	if items, ok := Items(v); ok {
		return len(items) == 0
	}
	if vals, ok := Values(v); ok {
		return len(vals) == 0
	}
	return false
}

// Text stringifies a scalar the way the backend's front-end did: numbers
// without trailing zeros, booleans as true/false, nil as the empty string.
// Arrays join their elements with commas. Objects report ok=false.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	case fmt.Stringer:
		return t.String(), true
	}
	if IsObject(v) {
		return "", false
	}
	if items, ok := Items(v); ok {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := Text(item)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		return "", false
	}
	return fmt.Sprint(v), true
}

// Encode returns the JSON encoding of v.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode copies a payload value into out via JSON.
func Decode(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("payload: encode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("payload: decode: %w", err)
	}
	return nil
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
