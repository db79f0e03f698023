package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authrator/internal/builder"
	"authrator/internal/client"
	"authrator/internal/metrics"
	"authrator/internal/model"
)

type senderFunc func(ctx context.Context, wr model.WireRequest) (*model.Response, error)

func (f senderFunc) Send(ctx context.Context, wr model.WireRequest) (*model.Response, error) {
	return f(ctx, wr)
}

func newTestDispatcher(s Sender) *Dispatcher {
	return NewDispatcher(builder.New(builder.DefaultOptions()), s, metrics.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatcher_Send_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		resp *model.Response
		err  error
		want model.Response
	}{
		{
			name: "success passes through",
			resp: &model.Response{Status: 200, StatusText: "OK", Body: `{"a":1}`, Size: 7, ElapsedMs: 12},
			want: model.Response{Status: 200, StatusText: "OK", Body: `{"a":1}`, Size: 7, ElapsedMs: 12},
		},
		{
			name: "non-2xx reports status and error message",
			err: &client.StatusError{
				Status:     404,
				StatusText: "Not Found",
				Headers:    []model.KeyValue{{Key: "Content-Type", Value: "application/json"}},
				Body:       `{"error":"missing"}`,
			},
			want: model.Response{
				Status:     404,
				StatusText: "Not Found",
				Headers:    []model.KeyValue{{Key: "Content-Type", Value: "application/json"}},
				Body:       "request failed with status code 404",
			},
		},
		{
			name: "non-2xx without body",
			err:  &client.StatusError{Status: 503},
			want: model.Response{Status: 503, StatusText: "Service Unavailable", Body: "request failed with status code 503"},
		},
		{
			name: "transport error",
			err:  fmt.Errorf("proxy request: %w", errors.New("dial tcp: connection refused")),
			want: model.Response{Status: 500, StatusText: "Error", Body: "proxy request: dial tcp: connection refused"},
		},
		{
			name: "canceled",
			err:  fmt.Errorf("proxy request: %w", context.Canceled),
			want: model.Response{Status: 500, StatusText: "Error", Body: "request canceled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(senderFunc(func(context.Context, model.WireRequest) (*model.Response, error) {
				return tt.resp, tt.err
			}))
			got := d.Send(context.Background(), "r1", model.Descriptor{URL: "https://example.com"})
			assert.Equal(t, tt.want, got)
			assert.Zero(t, d.InFlight())
		})
	}
}

func TestDispatcher_Send_BuildsWireRequest(t *testing.T) {
	var got model.WireRequest
	d := newTestDispatcher(senderFunc(func(_ context.Context, wr model.WireRequest) (*model.Response, error) {
		got = wr
		return &model.Response{Status: 200}, nil
	}))

	desc := model.Descriptor{
		Method:      "post",
		URL:         "https://example.com/items",
		QueryParams: []model.KeyValue{{Key: "q", Value: "a b"}},
		Auth:        model.Auth{Type: model.AuthBearer, Token: "tok"},
		Body:        model.RawString("{}"),
	}
	d.Send(context.Background(), "", desc)

	assert.Equal(t, d.Preview(desc), got)
	assert.Equal(t, "https://example.com/items?q=a%20b", got.URL)
	auth, ok := got.Header("authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer tok", auth)
}

func TestDispatcher_Cancel(t *testing.T) {
	started := make(chan struct{})
	d := newTestDispatcher(senderFunc(func(ctx context.Context, _ model.WireRequest) (*model.Response, error) {
		close(started)
		<-ctx.Done()
		return nil, fmt.Errorf("proxy request: %w", ctx.Err())
	}))

	done := make(chan model.Response)
	go func() { done <- d.Send(context.Background(), "r1", model.Descriptor{}) }()

	<-started
	assert.Equal(t, 1, d.InFlight())
	assert.True(t, d.Cancel("r1"))

	select {
	case resp := <-done:
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "request canceled", resp.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	assert.False(t, d.Cancel("r1"), "nothing left to cancel")
	assert.False(t, d.Cancel("unknown"))
}

func TestDispatcher_SameIDSupersedes(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	firstStarted := make(chan struct{})

	d := newTestDispatcher(senderFunc(func(ctx context.Context, _ model.WireRequest) (*model.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(firstStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &model.Response{Status: 200, StatusText: "OK"}, nil
	}))

	first := make(chan model.Response)
	go func() { first <- d.Send(context.Background(), "same", model.Descriptor{}) }()
	<-firstStarted

	second := d.Send(context.Background(), "same", model.Descriptor{})
	assert.Equal(t, 200, second.Status)

	select {
	case resp := <-first:
		assert.Equal(t, "request canceled", resp.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("first send was not superseded")
	}
	assert.Zero(t, d.InFlight())
}

func TestDispatcher_ParentContextCanceled(t *testing.T) {
	d := newTestDispatcher(senderFunc(func(ctx context.Context, _ model.WireRequest) (*model.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := d.Send(ctx, "r", model.Descriptor{})
	assert.Equal(t, "request canceled", resp.Body)
}
