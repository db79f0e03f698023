package model

// DefaultCollectionColor is used when the backend returns a collection without a colour.
const DefaultCollectionColor = "#6A5ACD"

// Collection is a named, user-organized group of saved requests.
type Collection struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	APIs  []API  `json:"apis"`
}

// API is a saved request. CollectionID is only set when the request is
// being moved to another collection.
type API struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Method       Method     `json:"method"`
	URL          string     `json:"url"`
	Headers      []KeyValue `json:"headers,omitempty"`
	QueryParams  []KeyValue `json:"queryParams,omitempty"`
	Body         Body       `json:"body"`
	Auth         Auth       `json:"auth"`
	CollectionID string     `json:"collectionId,omitempty"`
}

// Descriptor projects the send-relevant fields of a.
func (a API) Descriptor() Descriptor {
	return Descriptor{
		Method:      a.Method,
		URL:         a.URL,
		QueryParams: a.QueryParams,
		Headers:     a.Headers,
		Auth:        a.Auth,
		Body:        a.Body,
	}
}

// User is the opaque account record returned by the backend on login.
type User map[string]any

// ID returns the user's identifier, accepting either "id" or "_id".
func (u User) ID() string {
	for _, k := range []string{"id", "_id"} {
		if s, ok := u[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Email returns the account email, if known.
func (u User) Email() string {
	s, _ := u["email"].(string)
	return s
}

// State is the snapshot the panel renders.
type State struct {
	IsLoggedIn  bool         `json:"isLoggedIn"`
	User        User         `json:"user"`
	Collections []Collection `json:"collections"`
}
