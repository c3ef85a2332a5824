package cmd

import (
	"fmt"
	"strings"

	"github.com/nghyane/board-client/internal/client"
	"github.com/nghyane/board-client/internal/payload"
)

// ParseParams turns command-line items into an ordered params object:
//
//	key=value   string field
//	key:=json   raw JSON value (numbers, booleans, arrays, objects)
//	key@path    file read from path
//
// Repeated keys collect into a list. No items yields nil.
func ParseParams(items []string) (*payload.Object, error) {
	if len(items) == 0 {
		return nil, nil
	}
	obj := payload.NewObject()
	for _, item := range items {
		key, value, err := parseItem(item)
		if err != nil {
			return nil, err
		}
		if prev, ok := obj.Get(key); ok {
			if list, isList := prev.(repeated); isList {
				obj.Set(key, append(list, value))
			} else {
				obj.Set(key, repeated{prev, value})
			}
			continue
		}
		obj.Set(key, value)
	}
	for _, key := range obj.Keys() {
		if v, _ := obj.Get(key); v != nil {
			if list, ok := v.(repeated); ok {
				obj.Set(key, list.values())
			}
		}
	}
	return obj, nil
}

// repeated marks a key seen more than once while parsing.
type repeated []any

func (r repeated) values() any {
	files := make(client.FileList, 0, len(r))
	for _, v := range r {
		f, ok := v.(*client.File)
		if !ok {
			return []any(r)
		}
		files = append(files, f)
	}
	return files
}

func parseItem(item string) (string, any, error) {
	idx := strings.IndexAny(item, "=:@")
	if idx <= 0 {
		return "", nil, fmt.Errorf("invalid parameter %q: want key=value, key:=json or key@file", item)
	}
	key := item[:idx]
	rest := item[idx:]
	switch {
	case strings.HasPrefix(rest, ":="):
		v, err := payload.ParseString(rest[2:])
		if err != nil {
			return "", nil, fmt.Errorf("invalid json for %q: %w", key, err)
		}
		return key, v, nil
	case rest[0] == '=':
		return key, rest[1:], nil
	case rest[0] == '@':
		f, err := client.OpenFile(rest[1:])
		if err != nil {
			return "", nil, err
		}
		return key, f, nil
	}
	return "", nil, fmt.Errorf("invalid parameter %q: want key=value, key:=json or key@file", item)
}
