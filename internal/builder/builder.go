// Package builder assembles wire-ready requests from request descriptors.
//
// Building is a pure function of the descriptor and the builder options:
// no I/O, no shared mutable state, safe for concurrent use.
package builder

import (
	"encoding/base64"
	"strings"

	"authrator/internal/model"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"

	contentTypeJSON       = "application/json"
	contentTypeURLEncoded = "application/x-www-form-urlencoded"
)

// DefaultUserAgent is sent when the descriptor names no User-Agent.
const DefaultUserAgent = "Authrator-Client"

// Options are the builder's override points. The zero value sends no
// default headers and zero settings; use DefaultOptions as a base.
type Options struct {
	// DefaultHeaders are added in order after auth injection, each only if
	// no header with the same name is present yet.
	DefaultHeaders []model.KeyValue
	Settings       model.Settings
}

// DefaultOptions returns the stock default headers and transport settings.
func DefaultOptions() Options {
	return Options{
		DefaultHeaders: []model.KeyValue{
			{Key: headerUserAgent, Value: DefaultUserAgent},
			{Key: "Cache-Control", Value: "no-cache"},
			{Key: "Connection", Value: "keep-alive"},
		},
		Settings: model.Settings{
			FollowRedirects: true,
			Timeout:         30000,
			SSLVerification: true,
		},
	}
}

// WithUserAgent returns a copy of o whose User-Agent default is ua.
func (o Options) WithUserAgent(ua string) Options {
	headers := make([]model.KeyValue, 0, len(o.DefaultHeaders)+1)
	found := false
	for _, h := range o.DefaultHeaders {
		if strings.EqualFold(h.Key, headerUserAgent) {
			h.Value = ua
			found = true
		}
		headers = append(headers, h)
	}
	if !found {
		headers = append(headers, model.KeyValue{Key: headerUserAgent, Value: ua})
	}
	o.DefaultHeaders = headers
	return o
}

// Builder builds wire requests with a fixed set of options.
type Builder struct {
	opts Options
}

// New creates a Builder. opts is copied.
func New(opts Options) *Builder {
	opts.DefaultHeaders = append([]model.KeyValue(nil), opts.DefaultHeaders...)
	return &Builder{opts: opts}
}

var std = New(DefaultOptions())

// Build builds d with DefaultOptions.
func Build(d model.Descriptor) model.WireRequest {
	return std.Build(d)
}

// Build resolves d into a wire request: query string, headers with auth and
// default headers merged in, and the typed body. It never fails; malformed
// auth or body shapes are treated as none.
func (b *Builder) Build(d model.Descriptor) model.WireRequest {
	method := d.Method.Normalize()

	u := appendQuery(d.URL, d.QueryParams)

	h := newHeaderSet(len(d.Headers) + len(b.opts.DefaultHeaders) + 2)
	for _, kv := range d.Headers {
		key := strings.TrimSpace(kv.Key)
		if key == "" {
			continue
		}
		h.set(key, strings.TrimSpace(kv.Value))
	}

	u = injectAuth(d.Auth, h, u)

	for _, kv := range b.opts.DefaultHeaders {
		h.setDefault(kv.Key, kv.Value)
	}

	bodyType, body := resolveBody(method, d.Body, h)

	return model.WireRequest{
		Method:   method,
		URL:      u,
		Headers:  h.list(),
		BodyType: bodyType,
		Body:     body,
		Settings: b.opts.Settings,
	}
}

func injectAuth(auth model.Auth, h *headerSet, u string) string {
	switch auth.Type {
	case model.AuthBasic:
		if auth.Username != "" && !h.has(headerAuthorization) {
			cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
			h.set(headerAuthorization, "Basic "+cred)
		}
	case model.AuthBearer:
		if auth.Token != "" && !h.has(headerAuthorization) {
			h.set(headerAuthorization, "Bearer "+auth.Token)
		}
	case model.AuthAPIKey:
		k := auth.APIKey
		if k == nil || k.Key == "" || k.Value == "" {
			break
		}
		switch k.AddTo {
		case "", model.AddToHeader:
			h.setDefault(k.Key, k.Value)
		case model.AddToQuery:
			u = appendQuery(u, []model.KeyValue{{Key: k.Key, Value: k.Value}})
		}
	}
	return u
}

func resolveBody(method model.Method, body model.Body, h *headerSet) (model.BodyKind, *model.Body) {
	if !method.AllowsBody() {
		return model.BodyNone, nil
	}

	switch body.Kind {
	case model.BodyRaw:
		h.setDefault(headerContentType, contentTypeJSON)
		return model.BodyRaw, &model.Body{
			Kind:    model.BodyRaw,
			Content: body.Content,
			Bare:    body.Bare,
		}
	case model.BodyFormData:
		// No Content-Type: the multipart boundary is chosen by the sender.
		entries := make([]model.FormField, len(body.FormData))
		copy(entries, body.FormData)
		return model.BodyFormData, &model.Body{
			Kind:     model.BodyFormData,
			FormData: entries,
		}
	case model.BodyURLEncoded:
		h.setDefault(headerContentType, contentTypeURLEncoded)
		entries := make([]model.KeyValue, len(body.URLEncoded))
		copy(entries, body.URLEncoded)
		return model.BodyURLEncoded, &model.Body{
			Kind:       model.BodyURLEncoded,
			URLEncoded: entries,
		}
	default:
		return model.BodyNone, nil
	}
}
