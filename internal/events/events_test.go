package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskproxy/internal/account"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (r *recordingSink) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestNew(t *testing.T) {
	caller := account.MustParse("alice")
	target := account.MustParse("bob")

	ev := New(ReporterCreated, caller, target, map[string]any{"role": 1})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, ReporterCreated, ev.Type)
	assert.Equal(t, caller, ev.Caller)
	assert.Equal(t, target, ev.Target)
	assert.JSONEq(t, `{"role":1}`, string(ev.Data))
	assert.False(t, ev.Timestamp.IsZero())

	other := New(ReporterCreated, caller, target, nil)
	assert.NotEqual(t, ev.ID, other.ID)
	assert.Nil(t, other.Data)
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, b}

	ev := New(AddressCreated, "alice", "bob", nil)
	require.NoError(t, m.Publish(context.Background(), ev))
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMulti_JoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	a, b := &recordingSink{err: errA}, &recordingSink{}

	err := Multi{a, b}.Publish(context.Background(), New(OwnerChanged, "alice", "bob", nil))
	assert.ErrorIs(t, err, errA)
	assert.Len(t, b.events, 1, "a failing sink must not starve the others")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	s := NewLogSink(logger)
	require.NoError(t, s.Publish(context.Background(), New(AddressUpdated, "alice", "bob", nil)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "registry event", line["msg"])
	assert.Equal(t, AddressUpdated, line["event_type"])
	assert.Equal(t, "bob", line["target"])
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Publish(context.Background(), Event{}))
	assert.NoError(t, Discard.Close())
}
