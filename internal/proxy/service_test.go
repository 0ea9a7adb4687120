package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/events"
	"github.com/mbd888/riskproxy/internal/metrics"
	"github.com/mbd888/riskproxy/internal/registry"
	"github.com/mbd888/riskproxy/internal/state"
)

var (
	owner    = account.MustParse("owner")
	r1       = account.MustParse("r1")
	r2       = account.MustParse("r2")
	r3       = account.MustParse("r3")
	outsider = account.MustParse("outsider")
	x1       = account.MustParse("0x00000000000000000000000000000000000000aa")
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return NewService(state.NewMemoryStore(), sink, nil), sink
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService(t)

	require.NoError(t, svc.Initialize(ctx, owner))
	require.NoError(t, svc.CreateReporter(ctx, owner, r1, authority.Authority))
	require.NoError(t, svc.CreateReporter(ctx, r1, r2, authority.Reporter))

	err := svc.CreateReporter(ctx, r2, r3, authority.Reporter)
	assert.ErrorIs(t, err, authority.ErrUnauthorized)

	require.NoError(t, svc.CreateAddress(ctx, r2, x1, registry.MiningPool, 7))

	view, err := svc.GetAddress(ctx, x1)
	require.NoError(t, err)
	assert.Equal(t, registry.MiningPool, view.Category)
	assert.Equal(t, uint8(7), view.Risk)
	assert.True(t, view.Flagged)

	err = svc.CreateAddress(ctx, r2, x1, registry.Scam, 3)
	assert.ErrorIs(t, err, registry.ErrAddressExists)

	assert.Equal(t, []string{
		events.OwnerInitialized,
		events.ReporterCreated,
		events.ReporterCreated,
		events.AddressCreated,
	}, sink.types())
}

func TestService_Owner(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService(t)

	_, err := svc.Owner(ctx)
	assert.ErrorIs(t, err, authority.ErrNotInitialized)

	require.NoError(t, svc.Initialize(ctx, owner))
	assert.ErrorIs(t, svc.Initialize(ctx, outsider), authority.ErrAlreadyInitialized)

	assert.ErrorIs(t, svc.ChangeOwner(ctx, outsider, outsider), authority.ErrUnauthorized)
	require.NoError(t, svc.ChangeOwner(ctx, owner, r1))

	got, err := svc.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, r1, got)

	assert.Equal(t, []string{events.OwnerInitialized, events.OwnerChanged}, sink.types())

	var data map[string]string
	require.NoError(t, json.Unmarshal(sink.events[1].Data, &data))
	assert.Equal(t, "owner", data["previousOwner"])
	assert.Equal(t, owner, sink.events[1].Caller)
	assert.Equal(t, r1, sink.events[1].Target)
}

func TestService_Reporters(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService(t)
	require.NoError(t, svc.Initialize(ctx, owner))

	_, err := svc.GetRole(ctx, r1)
	assert.ErrorIs(t, err, authority.ErrReporterNotFound)

	ok, err := svc.IsReporter(ctx, r1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.CreateReporter(ctx, owner, r1, authority.Role(0)), authority.ErrInvalidRole)
	require.NoError(t, svc.CreateReporter(ctx, owner, r1, authority.Reporter))

	previous, err := svc.UpdateReporter(ctx, owner, r1, authority.Authority)
	require.NoError(t, err)
	assert.Equal(t, authority.Reporter, previous)

	role, err := svc.GetRole(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, authority.Authority, role)

	_, err = svc.UpdateReporter(ctx, owner, r2, authority.Reporter)
	assert.ErrorIs(t, err, authority.ErrReporterNotFound)

	assert.Equal(t, []string{events.OwnerInitialized, events.ReporterCreated, events.ReporterUpdated}, sink.types())
}

func TestService_Addresses(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService(t)
	require.NoError(t, svc.Initialize(ctx, owner))
	require.NoError(t, svc.CreateReporter(ctx, owner, r1, authority.Reporter))

	view, err := svc.GetAddress(ctx, x1)
	require.NoError(t, err)
	assert.Equal(t, registry.Unflagged, view.AddressRecord)
	assert.False(t, view.Flagged)

	assert.ErrorIs(t, svc.CreateAddress(ctx, outsider, x1, registry.Scam, 5), authority.ErrUnauthorized)
	assert.ErrorIs(t, svc.CreateAddress(ctx, r1, x1, registry.Scam, 11), registry.ErrInvalidRisk)
	assert.ErrorIs(t, svc.UpdateAddress(ctx, r1, x1, registry.Scam, 5), registry.ErrAddressNotFound)

	require.NoError(t, svc.CreateAddress(ctx, r1, x1, registry.None, 0))
	view, err = svc.GetAddress(ctx, x1)
	require.NoError(t, err)
	assert.True(t, view.Flagged, "explicit (None, 0) record is still flagged")

	require.NoError(t, svc.UpdateAddress(ctx, r1, x1, registry.Ransomware, 9))
	view, err = svc.GetAddress(ctx, x1)
	require.NoError(t, err)
	assert.Equal(t, registry.Ransomware, view.Category)
	assert.Equal(t, uint8(9), view.Risk)

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, events.AddressUpdated, last.Type)
	var data map[string]any
	require.NoError(t, json.Unmarshal(last.Data, &data))
	assert.Equal(t, "Ransomware", data["category"])
	assert.Equal(t, "None", data["previousCategory"])
	assert.EqualValues(t, 0, data["previousRisk"])

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FlaggedAddresses)
	assert.Equal(t, int64(1), stats.Reporters)
}

func TestService_FailedSinkDoesNotFailCall(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("broker down")}
	svc := NewService(state.NewMemoryStore(), sink, nil)

	before := promtestutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(events.OwnerInitialized, "error"))
	require.NoError(t, svc.Initialize(ctx, owner))
	after := promtestutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(events.OwnerInitialized, "error"))
	assert.Equal(t, before+1, after)

	got, err := svc.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestService_NilSinkDiscards(t *testing.T) {
	svc := NewService(state.NewMemoryStore(), nil, nil)
	require.NoError(t, svc.Initialize(context.Background(), owner))
}

type failingStore struct {
	state.Store
	err error
}

func (f failingStore) Update(context.Context, func(state.Tx) error) error { return f.err }

func TestService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	storeErr := errors.New("connection reset")
	svc := NewService(failingStore{Store: state.NewMemoryStore(), err: storeErr}, sink, nil)

	before := promtestutil.ToFloat64(metrics.CallsTotal.WithLabelValues("initialize", OutcomeError))
	err := svc.Initialize(ctx, owner)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, before+1, promtestutil.ToFloat64(metrics.CallsTotal.WithLabelValues("initialize", OutcomeError)))
	assert.Empty(t, sink.types())
}

func TestService_RejectedCallsCounted(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService(t)
	require.NoError(t, svc.Initialize(ctx, owner))

	before := promtestutil.ToFloat64(metrics.CallsTotal.WithLabelValues("create_address", OutcomeUnauthorized))
	assert.Error(t, svc.CreateAddress(ctx, outsider, x1, registry.Scam, 1))
	assert.Equal(t, before+1, promtestutil.ToFloat64(metrics.CallsTotal.WithLabelValues("create_address", OutcomeUnauthorized)))
	assert.Equal(t, []string{events.OwnerInitialized}, sink.types())
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{authority.ErrUnauthorized, OutcomeUnauthorized},
		{authority.ErrInvalidRole, OutcomeInvalidRole},
		{registry.ErrInvalidRisk, OutcomeInvalidRisk},
		{registry.ErrInvalidCategory, OutcomeInvalidCategory},
		{authority.ErrReporterExists, OutcomeAlreadyExists},
		{registry.ErrAddressExists, OutcomeAlreadyExists},
		{authority.ErrAlreadyInitialized, OutcomeAlreadyExists},
		{authority.ErrReporterNotFound, OutcomeNotFound},
		{registry.ErrAddressNotFound, OutcomeNotFound},
		{authority.ErrNotInitialized, OutcomeNotInitialized},
		{authority.ErrInvalidOwner, OutcomeInvalidArgument},
		{account.ErrInvalidID, OutcomeInvalidArgument},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "%v", tt.err)
	}
}
