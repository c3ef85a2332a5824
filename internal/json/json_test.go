package json

import (
	"strings"
	"testing"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	original := loginBody{Email: "a@b.c", Password: "pw"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"email":"a@b.c"`) {
		t.Errorf("Marshal output missing email field: %s", data)
	}

	var decoded loginBody
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != original {
		t.Errorf("Unmarshal mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalNumber(t *testing.T) {
	var v map[string]any
	if err := UnmarshalNumber([]byte(`{"voter_count": 12345678901234567}`), &v); err != nil {
		t.Fatalf("UnmarshalNumber failed: %v", err)
	}
	n, ok := v["voter_count"].(Number)
	if !ok {
		t.Fatalf("voter_count decoded as %T, want Number", v["voter_count"])
	}
	if n.String() != "12345678901234567" {
		t.Errorf("voter_count = %s", n)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`{"detail": "Not Found"}`, true},
		{`[1, 2, 3]`, true},
		{`Internal Server Error`, false},
		{`{"unclosed": }`, false},
	}

	for _, tt := range tests {
		if got := Valid([]byte(tt.input)); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
