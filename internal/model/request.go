// Package model defines the shared request, collection and response types.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// KeyValue is one ordered key/value entry (query parameter, header, form field).
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FormField is one multipart form entry. Type is "text" or "file" as set by the panel.
type FormField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Methods lists every method the panel offers.
var Methods = []Method{
	MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions,
}

// Normalize trims and upper-cases m. An empty method becomes GET.
func (m Method) Normalize() Method {
	s := strings.ToUpper(strings.TrimSpace(string(m)))
	if s == "" {
		return MethodGet
	}
	return Method(s)
}

// AllowsBody reports whether a request with this method may carry a payload.
func (m Method) AllowsBody() bool {
	switch m.Normalize() {
	case MethodGet, MethodHead:
		return false
	}
	return true
}

// AuthType tags the Auth variant.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api-key"
)

// APIKey placement targets.
const (
	AddToHeader = "header"
	AddToQuery  = "query"
)

// APIKey is the payload of an api-key Auth.
type APIKey struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	AddTo string `json:"addTo,omitempty"`
}

// Auth describes how credentials are attached to a request. Only the
// fields of the variant named by Type are meaningful.
type Auth struct {
	Type     AuthType `json:"type"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Token    string   `json:"token,omitempty"`
	APIKey   *APIKey  `json:"apiKey,omitempty"`
}

// IsZero reports whether a was never set (as opposed to explicitly none).
func (a Auth) IsZero() bool {
	return a.Type == "" && a.Username == "" && a.Password == "" && a.Token == "" && a.APIKey == nil
}

// UnmarshalJSON decodes an auth object. Unknown or malformed shapes decode
// to AuthNone instead of failing.
func (a *Auth) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	type plain Auth
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*a = Auth{Type: AuthNone}
		return nil
	}
	p.Type = parseAuthType(string(p.Type))
	*a = Auth(p)
	return nil
}

func parseAuthType(s string) AuthType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return AuthBasic
	case "bearer":
		return AuthBearer
	case "api-key", "apikey", "api_key":
		return AuthAPIKey
	default:
		return AuthNone
	}
}

// BodyKind tags the Body variant.
type BodyKind string

const (
	BodyNone       BodyKind = "none"
	BodyRaw        BodyKind = "raw"
	BodyFormData   BodyKind = "formData"
	BodyURLEncoded BodyKind = "urlencoded"
)

// Body is the request payload. Content is used by BodyRaw, FormData by
// BodyFormData and URLEncoded by BodyURLEncoded.
//
// Bare is set when the body was given as a plain string rather than a
// typed object; it changes only how the body is encoded on the wire.
type Body struct {
	Kind       BodyKind
	Content    string
	FormData   []FormField
	URLEncoded []KeyValue
	Bare       bool
}

// RawString returns a bare string body.
func RawString(s string) Body {
	return Body{Kind: BodyRaw, Content: s, Bare: true}
}

// IsZero reports whether b was never set.
func (b Body) IsZero() bool {
	return b.Kind == "" && b.Content == "" && b.FormData == nil && b.URLEncoded == nil
}

// Canonical returns b in typed-object form.
func (b Body) Canonical() Body {
	b.Bare = false
	if b.Kind == "" {
		b.Kind = BodyNone
	}
	return b
}

type rawBodyJSON struct {
	Type    BodyKind `json:"type"`
	Content string   `json:"content"`
}

type formDataBodyJSON struct {
	Type     BodyKind    `json:"type"`
	FormData []FormField `json:"formData"`
}

type urlencodedBodyJSON struct {
	Type       BodyKind   `json:"type"`
	URLEncoded []KeyValue `json:"urlencoded"`
}

type noneBodyJSON struct {
	Type BodyKind `json:"type"`
}

// MarshalJSON encodes a bare body as a JSON string and every other body as
// a {"type": ...} object carrying its variant's payload.
func (b Body) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BodyRaw:
		if b.Bare {
			return json.Marshal(b.Content)
		}
		return json.Marshal(rawBodyJSON{Type: BodyRaw, Content: b.Content})
	case BodyFormData:
		entries := b.FormData
		if entries == nil {
			entries = []FormField{}
		}
		return json.Marshal(formDataBodyJSON{Type: BodyFormData, FormData: entries})
	case BodyURLEncoded:
		entries := b.URLEncoded
		if entries == nil {
			entries = []KeyValue{}
		}
		return json.Marshal(urlencodedBodyJSON{Type: BodyURLEncoded, URLEncoded: entries})
	default:
		return json.Marshal(noneBodyJSON{Type: BodyNone})
	}
}

// UnmarshalJSON accepts either a plain string (a bare raw body) or a typed
// object. Anything else decodes to BodyNone.
func (b *Body) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*b = Body{Kind: BodyNone}
			return nil
		}
		*b = RawString(s)
		return nil
	}

	var obj struct {
		Type       string      `json:"type"`
		Content    json.RawMessage `json:"content"`
		FormData   []FormField     `json:"formData"`
		URLEncoded []KeyValue      `json:"urlencoded"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*b = Body{Kind: BodyNone}
		return nil
	}

	switch BodyKind(obj.Type) {
	case BodyRaw:
		*b = Body{Kind: BodyRaw, Content: rawContent(obj.Content)}
	case BodyFormData:
		*b = Body{Kind: BodyFormData, FormData: obj.FormData}
	case BodyURLEncoded:
		*b = Body{Kind: BodyURLEncoded, URLEncoded: obj.URLEncoded}
	default:
		*b = Body{Kind: BodyNone}
	}
	return nil
}

// rawContent returns a string content unquoted and any other JSON value as
// its text.
func rawContent(data json.RawMessage) string {
	if len(data) == 0 || isNull(data) {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// Descriptor is the declarative description of one request, read from the
// panel at send time.
type Descriptor struct {
	Method      Method     `json:"method"`
	URL         string     `json:"url"`
	QueryParams []KeyValue `json:"queryParams,omitempty"`
	Headers     []KeyValue `json:"headers,omitempty"`
	Auth        Auth       `json:"auth"`
	Body        Body       `json:"body"`
}
