package model

import "strings"

// Settings is the transport policy handed to the proxy with every request.
type Settings struct {
	FollowRedirects bool `json:"followRedirects"`
	Timeout         int  `json:"timeout"` // milliseconds
	SSLVerification bool `json:"sslVerification"`
}

// WireRequest is a fully resolved request. It is built once per send and
// consumed once by the proxy client.
type WireRequest struct {
	Method   Method     `json:"method"`
	URL      string     `json:"url"`
	Headers  []KeyValue `json:"headers"`
	BodyType BodyKind   `json:"bodyType"`
	Body     *Body      `json:"body"`
	Settings Settings   `json:"settings"`
}

// Header returns the value of the first header matching name
// case-insensitively.
func (w WireRequest) Header(name string) (string, bool) {
	for _, h := range w.Headers {
		if strings.EqualFold(h.Key, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Response is what the panel displays for one send. Transport failures are
// represented as a Response too; see the dispatcher.
type Response struct {
	Status     int        `json:"status"`
	StatusText string     `json:"statusText"`
	Headers    []KeyValue `json:"headers,omitempty"`
	Body       string     `json:"data"`
	Size       int64      `json:"size"`
	ElapsedMs  int64      `json:"time"`
}
