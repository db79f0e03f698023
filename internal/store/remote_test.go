package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authrator/internal/model"
)

type call struct {
	method   string
	template string
	vars     map[string]any
	body     map[string]any
}

// fakeBackend answers each "METHOD template" with a canned JSON document and
// records what it was sent, round-tripped through JSON.
type fakeBackend struct {
	responses map[string]string
	errs      map[string]error
	calls     []call
}

func (f *fakeBackend) Do(_ context.Context, method, template string, vars map[string]any, in, out any) error {
	c := call{method: method, template: template, vars: vars}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &c.body); err != nil {
			return err
		}
	}
	f.calls = append(f.calls, c)

	key := method + " " + template
	if err := f.errs[key]; err != nil {
		return err
	}
	if out != nil {
		if resp, ok := f.responses[key]; ok {
			return json.Unmarshal([]byte(resp), out)
		}
	}
	return nil
}

func newTestRemote(f *fakeBackend) *RemoteStore {
	return NewRemoteStore(f, func() string { return "user-1" }, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRemoteStore_ListCollections(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"GET collections/{userId}": `{"success":true,"collections":[
			{"_id":"c1","name":"Mongo","apis":[{"_id":"a1","name":"x","url":"u"}]},
			{"id":"c2","name":"Plain","color":"#000000"}
		]}`,
	}}
	s := newTestRemote(f)

	got, err := s.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, model.DefaultCollectionColor, got[0].Color)
	require.Len(t, got[0].APIs, 1)
	assert.Equal(t, model.API{ID: "a1", Name: "x", Method: model.MethodGet, URL: "u"}, got[0].APIs[0])

	assert.Equal(t, "c2", got[1].ID)
	assert.Equal(t, "#000000", got[1].Color)
	assert.NotNil(t, got[1].APIs)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "user-1", f.calls[0].vars["userId"])
}

func TestRemoteStore_ListCollections_Unsuccessful(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"GET collections/{userId}": `{"success":false,"message":"nope"}`,
	}}
	_, err := newTestRemote(f).ListCollections(context.Background())
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "nope")
}

func TestRemoteStore_CreateCollection(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"POST collections": `{"success":true,"collection":{"_id":"c9","name":"New","color":"#abcdef"}}`,
	}}
	c, err := newTestRemote(f).CreateCollection(context.Background(), "New", "#abcdef")
	require.NoError(t, err)
	assert.Equal(t, model.Collection{ID: "c9", Name: "New", Color: "#abcdef", APIs: []model.API{}}, c)
	assert.Equal(t, map[string]any{"name": "New", "color": "#abcdef", "userId": "user-1"}, f.calls[0].body)
}

func TestRemoteStore_CreateAPI(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"POST apis": `{"success":true,"api":{"id":"a7"}}`,
	}}
	api, err := newTestRemote(f).CreateAPI(context.Background(), "c1", "New", "post", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, model.API{ID: "a7", Name: "New", Method: model.MethodPost, URL: "https://example.com"}, api)

	require.Len(t, f.calls, 2)
	assert.Equal(t, map[string]any{"collectionId": "c1", "name": "New", "method": "POST"}, f.calls[0].body)

	init := f.calls[1]
	assert.Equal(t, "PUT", init.method)
	assert.Equal(t, "a7", init.vars["id"])
	assert.Equal(t, "https://example.com", init.body["url"])
	assert.Equal(t, []any{}, init.body["headers"])
	assert.Equal(t, []any{}, init.body["queryParams"])
	assert.Equal(t, map[string]any{"type": "none", "content": ""}, init.body["body"])
	assert.Equal(t, map[string]any{"type": "none"}, init.body["auth"])
	assert.Equal(t, map[string]any{"preRequest": "", "tests": ""}, init.body["scripts"])
}

func TestRemoteStore_GetAPI(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"GET apis/{id}": `{"success":true,"api":{"_id":"a1","name":"x","url":"u","body":"raw text"}}`,
	}}
	api, err := newTestRemote(f).GetAPI(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", api.ID)
	assert.Equal(t, model.MethodGet, api.Method)
	assert.Equal(t, []model.KeyValue{}, api.Headers)
	assert.Equal(t, []model.KeyValue{}, api.QueryParams)
	assert.Equal(t, model.RawString("raw text"), api.Body)
	assert.Equal(t, model.AuthNone, api.Auth.Type)
}

func TestRemoteStore_GetAPI_Missing(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"GET apis/{id}": `{"success":false}`,
	}}
	_, err := newTestRemote(f).GetAPI(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrAPINotFound)
}

func TestRemoteStore_UpdateAPI(t *testing.T) {
	tests := []struct {
		name string
		api  model.API
		want map[string]any
	}{
		{
			name: "bare body becomes raw object and nils become empty",
			api:  model.API{ID: "a1", Name: "n", Method: "GET", URL: "u", Body: model.RawString("hi")},
			want: map[string]any{
				"name": "n", "method": "GET", "url": "u",
				"headers": []any{}, "queryParams": []any{},
				"body": map[string]any{"type": "raw", "content": "hi"},
				"auth": map[string]any{"type": "none"},
			},
		},
		{
			name: "collection id only when set",
			api:  model.API{ID: "a1", Name: "n", Method: "GET", CollectionID: "c2"},
			want: map[string]any{
				"name": "n", "method": "GET", "url": "",
				"headers": []any{}, "queryParams": []any{},
				"body":         map[string]any{"type": "none"},
				"auth":         map[string]any{"type": "none"},
				"collectionId": "c2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{}
			require.NoError(t, newTestRemote(f).UpdateAPI(context.Background(), tt.api))
			require.Len(t, f.calls, 1)
			assert.Equal(t, "PUT", f.calls[0].method)
			assert.Equal(t, "apis/{id}", f.calls[0].template)
			assert.Equal(t, tt.want, f.calls[0].body)
		})
	}
}

func TestRemoteStore_RenameAndDelete(t *testing.T) {
	f := &fakeBackend{}
	s := newTestRemote(f)
	ctx := context.Background()

	require.NoError(t, s.RenameCollection(ctx, "c1", "New", "#fff000"))
	require.NoError(t, s.DeleteCollection(ctx, "c1"))
	require.NoError(t, s.DeleteAPI(ctx, "a1"))

	require.Len(t, f.calls, 3)
	assert.Equal(t, "collections/{id}/rename", f.calls[0].template)
	assert.Equal(t, map[string]any{"newName": "New", "color": "#fff000"}, f.calls[0].body)
	assert.Equal(t, "DELETE collections/{id}", f.calls[1].method+" "+f.calls[1].template)
	assert.Equal(t, "DELETE apis/{id}", f.calls[2].method+" "+f.calls[2].template)
}

func TestRemoteStore_MoveAPI(t *testing.T) {
	f := &fakeBackend{responses: map[string]string{
		"GET apis/{id}": `{"success":true,"api":{"_id":"a1","name":"x","method":"POST","url":"u"}}`,
	}}
	require.NoError(t, newTestRemote(f).MoveAPI(context.Background(), "a1", "c2"))

	require.Len(t, f.calls, 2)
	update := f.calls[1]
	assert.Equal(t, "PUT", update.method)
	assert.Equal(t, "c2", update.body["collectionId"])
	assert.Equal(t, "POST", update.body["method"])
}

func TestRemoteStore_BackendError(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeBackend{errs: map[string]error{"DELETE apis/{id}": boom}}
	err := newTestRemote(f).DeleteAPI(context.Background(), "a1")
	assert.ErrorIs(t, err, boom)
}
