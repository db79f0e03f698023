// Package service implements the workspace operations and request dispatch.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"authrator/internal/builder"
	"authrator/internal/client"
	"authrator/internal/metrics"
	"authrator/internal/model"
)

// Sender performs a wire request.
type Sender interface {
	Send(ctx context.Context, wr model.WireRequest) (*model.Response, error)
}

type flight struct {
	cancel context.CancelFunc
}

// Dispatcher builds requests, sends them through the proxy and turns every
// outcome, failures included, into a Response for display.
type Dispatcher struct {
	builder *builder.Builder
	sender  Sender
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewDispatcher creates a Dispatcher. The metrics parameter is optional.
func NewDispatcher(b *builder.Builder, s Sender, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		builder:  b,
		sender:   s,
		metrics:  m,
		logger:   logger.With("component", "dispatcher"),
		inflight: make(map[string]*flight),
	}
}

// Preview returns the wire request a send of d would perform.
func (d *Dispatcher) Preview(desc model.Descriptor) model.WireRequest {
	return d.builder.Build(desc)
}

// Send builds and performs desc. A send already in flight under the same
// requestID is canceled first; an empty requestID gets a fresh one.
func (d *Dispatcher) Send(ctx context.Context, requestID string, desc model.Descriptor) model.Response {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	wr := d.builder.Build(desc)

	ctx, cancel := context.WithCancel(ctx)
	f := d.register(requestID, cancel)
	defer d.release(requestID, f)

	if d.metrics != nil {
		d.metrics.DispatchInFlight.Inc()
		defer d.metrics.DispatchInFlight.Dec()
	}

	resp, err := d.sender.Send(ctx, wr)
	out, result := normalize(resp, err)

	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(result).Inc()
	}
	d.logger.Debug("dispatched",
		"request_id", requestID,
		"method", wr.Method,
		"url", client.RedactURL(wr.URL),
		"status", out.Status,
		"result", result,
	)
	return out
}

// Cancel aborts the send registered under requestID. It reports whether one
// was in flight.
func (d *Dispatcher) Cancel(requestID string) bool {
	d.mu.Lock()
	f, ok := d.inflight[requestID]
	if ok {
		delete(d.inflight, requestID)
	}
	d.mu.Unlock()

	if ok {
		f.cancel()
	}
	return ok
}

// InFlight returns the number of sends currently waiting on the proxy.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

func (d *Dispatcher) register(requestID string, cancel context.CancelFunc) *flight {
	f := &flight{cancel: cancel}

	d.mu.Lock()
	prev := d.inflight[requestID]
	d.inflight[requestID] = f
	d.mu.Unlock()

	if prev != nil {
		d.logger.Debug("superseding in-flight send", "request_id", requestID)
		prev.cancel()
	}
	return f
}

// release deregisters f unless a newer send has taken its id.
func (d *Dispatcher) release(requestID string, f *flight) {
	d.mu.Lock()
	if d.inflight[requestID] == f {
		delete(d.inflight, requestID)
	}
	d.mu.Unlock()
	f.cancel()
}

const canceledBody = "request canceled"

// normalize maps a send outcome onto a Response and a dispatch result label.
func normalize(resp *model.Response, err error) (model.Response, string) {
	if err == nil {
		return *resp, metrics.ResultOK
	}

	var se *client.StatusError
	if errors.As(err, &se) {
		text := se.StatusText
		if text == "" {
			text = http.StatusText(se.Status)
		}
		return model.Response{
			Status:     se.Status,
			StatusText: text,
			Headers:    se.Headers,
			Body:       se.Error(),
		}, metrics.ResultHTTPError
	}

	if errors.Is(err, context.Canceled) {
		return model.Response{
			Status:     http.StatusInternalServerError,
			StatusText: "Error",
			Body:       canceledBody,
		}, metrics.ResultCanceled
	}

	return model.Response{
		Status:     http.StatusInternalServerError,
		StatusText: "Error",
		Body:       err.Error(),
	}, metrics.ResultTransportError
}
