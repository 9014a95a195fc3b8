package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/events"
)

type capturePublisher struct {
	events []events.Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func TestEmitFansOut(t *testing.T) {
	first := &capturePublisher{}
	second := &capturePublisher{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{Publishers: []events.Publisher{first, nil, second}, Now: func() time.Time { return now }}

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceFinalized, "INV-000001", map[string]any{"number": 1})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, now, ev.OccurredAt)
	require.JSONEq(t, `{"number":1}`, string(ev.Payload))
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, ev.ID, second.events[0].ID)
}

func TestEmitJoinsPublisherErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &capturePublisher{err: boom}
	ok := &capturePublisher{}
	bus := events.Bus{Publishers: []events.Publisher{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicInvoiceFinalized, "INV-000001", nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, ok.events, 1, "later publishers still run")
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "x", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicInvoiceFinalized, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicInvoiceFinalized, "x", "{not json")
	require.Error(t, err)

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceFinalized, "x", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(ev.Payload))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: &logger}}}
	_, err := bus.Emit(context.Background(), events.TopicStockRestocked, "paracetamol", nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"topic":"stock.restocked"`)
}
