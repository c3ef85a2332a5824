package client

import (
	"fmt"
	"net/http"
	"strings"
)

// BodyKind is the encoding chosen for a call.
type BodyKind int

const (
	// QueryOnly sends no body.
	QueryOnly BodyKind = iota
	// JSONBody sends an application/json body.
	JSONBody
	// MultipartBody sends a multipart/form-data body.
	MultipartBody
)

func (k BodyKind) String() string {
	switch k {
	case QueryOnly:
		return "query"
	case JSONBody:
		return "json"
	case MultipartBody:
		return "multipart"
	default:
		return fmt.Sprintf("body(%d)", int(k))
	}
}

// Call spells out query and body explicitly. UseFormData forces a
// multipart body even when no file is present.
type Call struct {
	Query       any
	Body        any
	UseFormData bool
}

// Plan is the classified request: where params go and how the body is
// encoded. Exactly one of Query/Body is set for plain params.
type Plan struct {
	Method string
	Query  any
	Kind   BodyKind
	// Body is the value to encode as JSON when Kind is JSONBody.
	Body any
	// Form is the multipart body when Kind is MultipartBody.
	Form *FormData
}

// ParseMethod validates op case-insensitively. An empty op is GET.
func ParseMethod(op string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(op))
	switch m {
	case "":
		return http.MethodGet, nil
	case http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete:
		return m, nil
	}
	return "", fmt.Errorf("client: unsupported method %q", op)
}

func allowsBody(method string) bool {
	return method != http.MethodGet && method != http.MethodDelete
}

func isMutating(method string) bool {
	return method != http.MethodGet
}

// Classify partitions params for method and picks the body encoding. It
// performs no I/O.
//
// params may be a prepared *FormData, a Call (or *Call), or any other value:
// used as the query for GET and DELETE, and as the body otherwise.
func Classify(method string, params any) (Plan, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Method: m, Kind: QueryOnly}

	var body any
	force := false
	switch p := params.(type) {
	case *FormData:
		body = p
	case Call:
		plan.Query, body, force = p.Query, p.Body, p.UseFormData
	case *Call:
		if p != nil {
			plan.Query, body, force = p.Query, p.Body, p.UseFormData
		}
	default:
		if allowsBody(m) {
			body = params
			if body == nil {
				body = map[string]any{}
			}
		} else {
			plan.Query = params
		}
	}

	if body == nil || !allowsBody(m) {
		return plan, nil
	}
	if form, ok := body.(*FormData); ok {
		if form == nil {
			form = NewFormData()
		}
		plan.Kind, plan.Form = MultipartBody, form
		return plan, nil
	}
	if force || HasFile(body) {
		form, err := EncodeForm(body)
		if err != nil {
			return Plan{}, err
		}
		plan.Kind, plan.Form = MultipartBody, form
		return plan, nil
	}
	plan.Kind, plan.Body = JSONBody, body
	return plan, nil
}
