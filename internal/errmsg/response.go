package errmsg

import (
	"strings"

	"github.com/nghyane/board-client/internal/payload"
)

// dataFields are probed in order for the object that holds the body.
var dataFields = [][]string{
	{"response", "data"},
	{"data"},
	{"body"},
	{"payload"},
	{"json"},
	{"error"},
}

// statusTextFields are probed on the original value, not the resolved body.
var statusTextFields = [][]string{
	{"response", "statusText"},
	{"statusText"},
	{"status", "text"},
}

// responseExtractor inspects the resolved body (data) or the original
// value (orig) and reports a message when its rule applies.
type responseExtractor func(data, orig any, depth int) (string, bool)

// responseChain is filled in init: nestedErrors recurses into extract,
// which leads back here.
var responseChain []responseExtractor

func init() {
	responseChain = []responseExtractor{
		detailString,
		detailList,
		detailObject,
		plainFields,
		statusText,
		nestedErrors,
		serialized,
	}
}

func fromResponse(v, orig any, depth int) (string, bool) {
	data := resolve(v)
	for _, step := range responseChain {
		if msg, ok := step(data, orig, depth); ok {
			return msg, true
		}
	}
	return "", false
}

func resolve(v any) any {
	for _, path := range dataFields {
		inner, ok := payload.Path(v, path...)
		if !ok || inner == nil {
			continue
		}
		if payload.IsObject(inner) || payload.IsArray(inner) {
			return inner
		}
	}
	return v
}

func detailString(data, _ any, _ int) (string, bool) {
	d, _ := payload.Lookup(data, "detail")
	s, ok := d.(string)
	return s, ok && s != ""
}

func detailList(data, _ any, _ int) (string, bool) {
	d, _ := payload.Lookup(data, "detail")
	items, ok := payload.Items(d)
	if !ok {
		return "", false
	}
	msgs := make([]string, 0, len(items))
	for _, item := range items {
		if msg := listEntry(item); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) == 0 {
		return "", false
	}
	return strings.Join(msgs, "\n"), true
}

func listEntry(item any) string {
	for _, key := range []string{"msg", "message"} {
		if v, ok := payload.Lookup(item, key); ok && truthy(v) {
			if s, ok := payload.Text(v); ok {
				return s
			}
			return objectText
		}
	}
	if s, ok := item.(string); ok {
		return s
	}
	return ""
}

func detailObject(data, _ any, _ int) (string, bool) {
	d, _ := payload.Lookup(data, "detail")
	if !payload.IsObject(d) {
		return "", false
	}
	values, _ := payload.Values(d)
	if len(values) == 0 {
		return UnknownDetail, true
	}
	first := values[0]
	if items, ok := payload.Items(first); ok {
		if len(items) == 0 {
			return UnknownDetail, true
		}
		first = items[0]
	}
	msg, ok := payload.Text(first)
	if !ok || msg == "" || msg == objectText {
		return UnknownDetail, true
	}
	return msg, true
}

func plainFields(data, _ any, _ int) (string, bool) {
	for _, key := range []string{"message", "msg", "error"} {
		v, _ := payload.Lookup(data, key)
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func statusText(_, orig any, _ int) (string, bool) {
	for _, path := range statusTextFields {
		v, _ := payload.Path(orig, path...)
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func nestedErrors(data, _ any, depth int) (string, bool) {
	if !payload.IsObject(data) {
		return "", false
	}
	for _, key := range []string{"error", "errors"} {
		v, _ := payload.Lookup(data, key)
		if !truthy(v) {
			continue
		}
		if msg, ok := extract(v, depth+1); ok {
			return msg, true
		}
		// An empty nested value is still shown as itself.
		if b, err := payload.Encode(v); err == nil && len(b) > 0 {
			return string(b), true
		}
	}
	return "", false
}

func serialized(data, _ any, _ int) (string, bool) {
	if !payload.IsObject(data) && !payload.IsArray(data) {
		return "", false
	}
	if payload.Empty(data) {
		return "", false
	}
	b, err := payload.Encode(data)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// truthy mirrors the front-end's notion of a present value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	}
	if s, ok := payload.Text(v); ok && !payload.IsArray(v) {
		return s != "0" && s != ""
	}
	return true
}
