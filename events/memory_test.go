package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelBusDeliversInOrder(t *testing.T) {
	bus := NewChannelBus(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, second := New(LeadAssigned), New(LeadStatusChanged)
	require.NoError(t, bus.Publish(ctx, first))
	require.NoError(t, bus.Publish(ctx, second))

	var got []Event
	err := bus.Consume(ctx, func(_ context.Context, e Event) error {
		got = append(got, e)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, LeadStatusChanged, got[1].Type)
}

func TestChannelBusClosed(t *testing.T) {
	bus := NewChannelBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), New(ImportApplied)), ErrClosed)
	assert.ErrorIs(t, bus.Consume(context.Background(), func(context.Context, Event) error { return nil }), ErrClosed)
}

func TestChannelBusFullBufferDoesNotBlockForever(t *testing.T) {
	bus := NewChannelBus(1)
	require.NoError(t, bus.Publish(context.Background(), New(LeadAssigned)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, New(LeadAssigned)), context.DeadlineExceeded)

	published := make(chan error, 1)
	go func() { published <- bus.Publish(context.Background(), New(LeadAssigned)) }()

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a pending Publish")
	}
	select {
	case err := <-published:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending Publish not released by Close")
	}
}

func TestChannelBusDrainsAfterClose(t *testing.T) {
	bus := NewChannelBus(2)
	require.NoError(t, bus.Publish(context.Background(), New(LeadAssigned)))
	require.NoError(t, bus.Publish(context.Background(), New(ImportApplied)))
	require.NoError(t, bus.Close())

	var got []Type
	err := bus.Consume(context.Background(), func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []Type{LeadAssigned, ImportApplied}, got)
}

func TestNewStampsEvent(t *testing.T) {
	a, b := New(LeadAssigned), New(LeadAssigned)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
}
