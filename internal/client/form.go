package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nghyane/board-client/internal/payload"
)

// File is a file-like body value. A File without a Name is sent as "blob".
type File struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// FileList is a list of files sent under one field name.
type FileList []*File

// NewFile returns an in-memory file.
func NewFile(name string, data []byte) *File {
	return &File{Name: name, Content: bytes.NewReader(data)}
}

// OpenFile reads path into memory.
func OpenFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("client: open %s: %w", path, err)
	}
	return NewFile(filepath.Base(path), data), nil
}

type formPart struct {
	name  string
	value string
	file  *File
}

// FormData is an ordered multipart body under construction.
type FormData struct {
	parts []formPart
}

// NewFormData returns an empty body.
func NewFormData() *FormData {
	return &FormData{}
}

// Append adds a text field.
func (f *FormData) Append(name, value string) {
	f.parts = append(f.parts, formPart{name: name, value: value})
}

// AppendFile adds a file field.
func (f *FormData) AppendFile(name string, file *File) {
	if file == nil {
		return
	}
	f.parts = append(f.parts, formPart{name: name, file: file})
}

// Get returns the first text value stored under name.
func (f *FormData) Get(name string) (string, bool) {
	for _, p := range f.parts {
		if p.name == name && p.file == nil {
			return p.value, true
		}
	}
	return "", false
}

// Names returns the field names in order, one entry per part.
func (f *FormData) Names() []string {
	out := make([]string, 0, len(f.parts))
	for _, p := range f.parts {
		out = append(out, p.name)
	}
	return out
}

// Len returns the number of parts.
func (f *FormData) Len() int { return len(f.parts) }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

// Encode writes the multipart body and returns it with its content type.
func (f *FormData) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range f.parts {
		if p.file == nil {
			if err := w.WriteField(p.name, p.value); err != nil {
				return nil, "", fmt.Errorf("client: write field %s: %w", p.name, err)
			}
			continue
		}
		if err := writeFilePart(w, p.name, p.file); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("client: close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, name string, file *File) error {
	filename := file.Name
	if filename == "" {
		filename = "blob"
	}
	var content io.Reader = bytes.NewReader(nil)
	if file.Content != nil {
		content = file.Content
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(content, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("client: read %s: %w", filename, err)
	}
	head = head[:n]
	contentType := file.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(head).String()
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("client: create part %s: %w", name, err)
	}
	if _, err := io.Copy(part, io.MultiReader(bytes.NewReader(head), content)); err != nil {
		return fmt.Errorf("client: write %s: %w", filename, err)
	}
	return nil
}

// HasFile reports whether v holds a file-like value at any depth.
func HasFile(v any) bool {
	return hasFile(v, 0)
}

func hasFile(v any, depth int) bool {
	if v == nil || depth > 64 {
		return false
	}
	switch t := v.(type) {
	case *File:
		return t != nil
	case *os.File:
		return t != nil
	case FileList:
		for _, f := range t {
			if f != nil {
				return true
			}
		}
		return false
	case *payload.Object:
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			if hasFile(child, depth+1) {
				return true
			}
		}
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if hasFile(iter.Value().Interface(), depth+1) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if hasFile(rv.Index(i).Interface(), depth+1) {
				return true
			}
		}
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			return hasFile(rv.Elem().Interface(), depth+1)
		}
	}
	return false
}

// EncodeForm flattens v into multipart fields. Nested objects become
// "parent.child", slices repeat "key[]", objects inside slices recurse
// under "key[]", times are ISO-8601 UTC and nil values are skipped.
func EncodeForm(v any) (*FormData, error) {
	form := NewFormData()
	if err := encodeForm(form, payloadOrMap(v), "", 0); err != nil {
		return nil, err
	}
	return form, nil
}

// payloadOrMap leaves maps and payload objects alone so file values
// survive; structs are converted to payload objects.
func payloadOrMap(v any) any {
	if _, ok := formEntries(v); ok {
		return v
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.IsValid() && rv.Kind() == reflect.Struct {
		return payload.From(v)
	}
	return v
}

type formEntry struct {
	key   string
	value any
}

func formEntries(v any) ([]formEntry, bool) {
	if obj, ok := v.(*payload.Object); ok {
		out := make([]formEntry, 0, obj.Len())
		for _, k := range obj.Keys() {
			child, _ := obj.Get(k)
			out = append(out, formEntry{k, child})
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	keys := make([]string, 0, rv.Len())
	index := make(map[string]reflect.Value, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
		index[k.String()] = k
	}
	sort.Strings(keys)
	out := make([]formEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, formEntry{k, rv.MapIndex(index[k]).Interface()})
	}
	return out, true
}

func encodeForm(form *FormData, v any, prefix string, depth int) error {
	if depth > 64 {
		return fmt.Errorf("client: form nesting too deep at %q", prefix)
	}
	entries, ok := formEntries(v)
	if !ok {
		if prefix == "" {
			return fmt.Errorf("client: cannot encode %T as form data", v)
		}
		return nil
	}
	for _, e := range entries {
		key := e.key
		if prefix != "" {
			key = prefix + "." + e.key
		}
		if err := encodeFormValue(form, key, e.value, depth); err != nil {
			return err
		}
	}
	return nil
}

func encodeFormValue(form *FormData, key string, value any, depth int) error {
	switch t := value.(type) {
	case nil:
		return nil
	case *File:
		form.AppendFile(key, t)
		return nil
	case *os.File:
		if t != nil {
			form.AppendFile(key, &File{Name: filepath.Base(t.Name()), Content: t})
		}
		return nil
	case FileList:
		for _, f := range t {
			form.AppendFile(key, f)
		}
		return nil
	case time.Time, *time.Time:
		if s, ok := stringify(t); ok {
			form.Append(key, s)
		}
		return nil
	}
	if _, ok := formEntries(value); ok {
		return encodeForm(form, value, key, depth+1)
	}
	if items, ok := sliceItems(value); ok {
		for _, item := range items {
			if item == nil {
				continue
			}
			if _, ok := formEntries(item); ok {
				if err := encodeForm(form, item, key+"[]", depth+1); err != nil {
					return err
				}
				continue
			}
			if err := encodeFormValue(form, key+"[]", item, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return encodeFormValue(form, key, rv.Elem().Interface(), depth)
	}
	if rv.Kind() == reflect.Struct {
		return encodeFormValue(form, key, payload.From(value), depth)
	}
	s, _ := stringify(value)
	form.Append(key, s)
	return nil
}
