package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskproxy/internal/circuitbreaker"
)

type flakySink struct {
	err    error
	calls  int
	closed bool
}

func (f *flakySink) Publish(context.Context, Event) error {
	f.calls++
	return f.err
}

func (f *flakySink) Close() error {
	f.closed = true
	return nil
}

func TestGuardedSink_OpensAfterFailures(t *testing.T) {
	inner := &flakySink{err: errors.New("broker down")}
	g := Guard("test-kafka", inner, circuitbreaker.New(2, time.Hour))
	ev := New(AddressCreated, "r1", "x1", nil)

	assert.EqualError(t, g.Publish(context.Background(), ev), "broker down")
	assert.EqualError(t, g.Publish(context.Background(), ev), "broker down")
	assert.ErrorIs(t, g.Publish(context.Background(), ev), circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.calls, "open circuit skips the sink")

	require.NoError(t, g.Close())
	assert.True(t, inner.closed)
}

func TestGuardedSink_PassesThrough(t *testing.T) {
	inner := &flakySink{}
	g := Guard("test-ok", inner, circuitbreaker.New(1, time.Hour))

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Publish(context.Background(), New(OwnerChanged, "a", "b", nil)))
	}
	assert.Equal(t, 3, inner.calls)
}
