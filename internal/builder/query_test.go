package builder

import (
	"testing"

	"authrator/internal/model"
)

func TestEncodeComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"hello world", "hello%20world"},
		{"a&b=c", "a%26b%3Dc"},
		{"keep-_.!~*'()", "keep-_.!~*'()"},
		{"100%", "100%25"},
		{"a/b?c#d", "a%2Fb%3Fc%23d"},
		{"+", "%2B"},
		{"ü", "%C3%BC"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := encodeComponent(tt.in); got != tt.want {
				t.Errorf("encodeComponent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAppendQuery(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		params []model.KeyValue
		want   string
	}{
		{
			name: "no params",
			url:  "http://example.com/hello",
			want: "http://example.com/hello",
		},
		{
			name:   "only empty keys",
			url:    "http://example.com/hello",
			params: []model.KeyValue{{Key: "", Value: "x"}},
			want:   "http://example.com/hello",
		},
		{
			name: "order preserved",
			url:  "http://example.com/hello",
			params: []model.KeyValue{
				{Key: "foo", Value: "bar"},
				{Key: "fizz", Value: "buzz"},
			},
			want: "http://example.com/hello?foo=bar&fizz=buzz",
		},
		{
			name:   "existing query string",
			url:    "http://example.com/hello?hoge=fuga",
			params: []model.KeyValue{{Key: "foo", Value: "bar"}},
			want:   "http://example.com/hello?hoge=fuga&foo=bar",
		},
		{
			name: "repeated keys",
			url:  "http://example.com/hello",
			params: []model.KeyValue{
				{Key: "foo", Value: "value 1"},
				{Key: "foo", Value: "value 2"},
			},
			want: "http://example.com/hello?foo=value%201&foo=value%202",
		},
		{
			name:   "empty value",
			url:    "http://example.com/hello",
			params: []model.KeyValue{{Key: "flag"}},
			want:   "http://example.com/hello?flag=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := appendQuery(tt.url, tt.params); got != tt.want {
				t.Errorf("appendQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
