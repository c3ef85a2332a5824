package client

import (
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nghyane/board-client/internal/payload"
)

type queryPair struct {
	key   string
	value any
}

// BuildQuery serializes q into "?k=v&..." or "" when nothing survives.
// Nil and empty-string values are dropped; slices repeat the key.
func BuildQuery(q any) string {
	pairs := queryPairs(q)
	var b strings.Builder
	for _, p := range pairs {
		if items, ok := sliceItems(p.value); ok {
			for _, item := range items {
				appendQuery(&b, p.key, item)
			}
			continue
		}
		appendQuery(&b, p.key, p.value)
	}
	if b.Len() == 0 {
		return ""
	}
	return "?" + b.String()
}

func appendQuery(b *strings.Builder, key string, v any) {
	s, ok := stringify(v)
	if !ok || s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(url.QueryEscape(key))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(s))
}

func queryPairs(q any) []queryPair {
	switch t := q.(type) {
	case nil:
		return nil
	case *payload.Object:
		pairs := make([]queryPair, 0, t.Len())
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			pairs = append(pairs, queryPair{k, v})
		}
		return pairs
	case url.Values:
		keys := sortedKeys(t)
		pairs := make([]queryPair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, queryPair{k, t[k]})
		}
		return pairs
	}
	rv := reflect.ValueOf(q)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		pairs := make([]queryPair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, queryPair{k, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()})
		}
		return pairs
	case reflect.Struct:
		return queryPairs(payload.From(q))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sliceItems returns the elements of a slice value, excluding byte slices.
func sliceItems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// stringify renders a scalar for a query string or a form field.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case time.Time:
		return isoTime(t), true
	case *time.Time:
		if t == nil {
			return "", false
		}
		return isoTime(*t), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		return stringify(rv.Elem().Interface())
	}
	s, ok := payload.Text(v)
	if !ok {
		return objectText, true
	}
	return s, true
}

// isoTime formats t the way Date.prototype.toISOString does.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

const objectText = "[object Object]"
