package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/nghyane/board-client/internal/payload"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", http.MethodGet, false},
		{"get", http.MethodGet, false},
		{" Post ", http.MethodPost, false},
		{"patch", http.MethodPatch, false},
		{"DELETE", http.MethodDelete, false},
		{"PUT", "", true},
		{"head", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMethod(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		params    any
		wantKind  BodyKind
		wantQuery bool
	}{
		{"get params become query", "GET", map[string]any{"page": 1}, QueryOnly, true},
		{"delete params become query", "delete", map[string]any{"id": 3}, QueryOnly, true},
		{"post params become json", "POST", map[string]any{"title": "x"}, JSONBody, false},
		{"patch nil becomes empty json", "PATCH", nil, JSONBody, false},
		{"post with file becomes multipart", "POST", map[string]any{"image": NewFile("a.png", []byte("x"))}, MultipartBody, false},
		{"nested file becomes multipart", "POST", map[string]any{"meta": map[string]any{"files": []*File{NewFile("a", nil)}}}, MultipartBody, false},
		{"forced multipart", "POST", Call{Body: map[string]any{"name": "x"}, UseFormData: true}, MultipartBody, false},
		{"explicit query and body", "POST", &Call{Query: map[string]any{"q": 1}, Body: map[string]any{"b": 2}}, JSONBody, true},
		{"prepared form data", "PATCH", NewFormData(), MultipartBody, false},
		{"get ignores explicit body", "GET", Call{Query: map[string]any{"q": 1}, Body: map[string]any{"b": 2}}, QueryOnly, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Classify(tt.method, tt.params)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if plan.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", plan.Kind, tt.wantKind)
			}
			if (plan.Query != nil) != tt.wantQuery {
				t.Fatalf("query = %v, wantQuery %v", plan.Query, tt.wantQuery)
			}
			if plan.Kind == MultipartBody && plan.Form == nil {
				t.Fatal("multipart plan without form")
			}
			if plan.Kind == JSONBody && plan.Body == nil {
				t.Fatal("json plan without body")
			}
		})
	}
}

func TestClassifyNilBodyIsEmptyObject(t *testing.T) {
	plan, err := Classify("POST", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	body, err := payload.Encode(plan.Body)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(body) != "{}" {
		t.Fatalf("body = %s, want {}", body)
	}
}

func TestClassifyRejectsUnknownMethod(t *testing.T) {
	if _, err := Classify("OPTIONS", nil); err == nil {
		t.Fatal("expected error for OPTIONS")
	}
}

func TestBuildQuery(t *testing.T) {
	ordered := payload.NewObject().Set("z", 1).Set("a", "b")
	at := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("x", 3600))

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"empty map", map[string]any{}, ""},
		{"sorted map keys", map[string]any{"b": 2, "a": "x"}, "?a=x&b=2"},
		{"object keeps insertion order", ordered, "?z=1&a=b"},
		{"drops nil and empty", map[string]any{"a": nil, "b": "", "c": 0}, "?c=0"},
		{"bool and float", map[string]any{"f": 1.5, "t": true}, "?f=1.5&t=true"},
		{"escapes", map[string]any{"q": "a b&c"}, "?q=a+b%26c"},
		{"slice repeats key", map[string]any{"tag": []string{"go", "web"}}, "?tag=go&tag=web"},
		{"time is iso utc", map[string]any{"since": at}, "?since=2024-01-02T02%3A04%3A05.006Z"},
		{"string map", map[string]string{"k": "v"}, "?k=v"},
		{"only empties", map[string]any{"a": ""}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.in); got != tt.want {
				t.Fatalf("BuildQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildQueryStruct(t *testing.T) {
	type page struct {
		Page  int    `json:"page"`
		Order string `json:"order,omitempty"`
	}
	if got := BuildQuery(page{Page: 2}); got != "?page=2" {
		t.Fatalf("BuildQuery = %q", got)
	}
}
