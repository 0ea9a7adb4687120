package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/auth"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/config"
	"github.com/mbd888/riskproxy/internal/events"
	"github.com/mbd888/riskproxy/internal/logging"
	"github.com/mbd888/riskproxy/internal/registry"
	"github.com/mbd888/riskproxy/internal/state"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	store *state.MemoryStore
	keys  *auth.MemoryStore
	sink  *recorder
	cfg   *config.Config
}

// newHarness points every command at one shared in-memory registry.
func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("RISKCTL_AS", "")

	cfg := config.Defaults()
	cfg.JWTSecret = testJWTSecret
	h := &harness{
		store: state.NewMemoryStore(),
		keys:  auth.NewMemoryStore(),
		sink:  &recorder{},
		cfg:   cfg,
	}

	orig := openSession
	openSession = func(ctx context.Context) (*session, error) {
		logger := logging.NewWithWriter(io.Discard, "error", "text")
		return newSession(h.cfg, logger, h.store, h.keys, h.sink), nil
	}
	t.Cleanup(func() { openSession = orig })
	return h
}

func (h *harness) run(args ...string) (string, error) {
	databaseURL, callerFlag, jsonOutput = "", "", false
	keyName, tokenTTL = "riskctl", time.Hour

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(args...)
	require.NoError(t, err, "riskctl %s", strings.Join(args, " "))
	return out
}

func TestCLI_Scenario(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "init", "owner")
	assert.Contains(t, out, "Owner: owner")
	assert.Equal(t, "owner\n", h.mustRun(t, "owner"))

	h.mustRun(t, "reporter", "add", "r1", "authority", "--as", "owner")
	h.mustRun(t, "reporter", "add", "r2", "reporter", "--as", "r1")
	assert.Equal(t, "reporter\n", h.mustRun(t, "reporter", "get", "r2"))

	out = h.mustRun(t, "address", "flag", "tornado.mixer", "Mixer", "10", "--as", "r2")
	assert.Contains(t, out, "tornado.mixer flagged: Mixer, risk 10")
	assert.Contains(t, h.mustRun(t, "address", "get", "tornado.mixer"), "Mixer, risk 10")

	h.mustRun(t, "address", "update", "tornado.mixer", "Scam", "3", "--as", "r2")
	assert.Contains(t, h.mustRun(t, "address", "get", "tornado.mixer"), "Scam, risk 3")

	out = h.mustRun(t, "reporter", "set", "r2", "authority", "--as", "owner")
	assert.Contains(t, out, "r2: reporter -> authority")

	out = h.mustRun(t, "stats")
	assert.Contains(t, out, "reporters:         2")
	assert.Contains(t, out, "authorities:       2")
	assert.Contains(t, out, "flagged addresses: 1")

	assert.Equal(t, []string{
		events.OwnerInitialized,
		events.ReporterCreated,
		events.ReporterCreated,
		events.AddressCreated,
		events.AddressUpdated,
		events.ReporterUpdated,
	}, h.sink.types())
}

func TestCLI_OwnerTransfer(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "owner")

	_, err := h.run("owner", "transfer", "mallory", "--as", "mallory")
	assert.ErrorIs(t, err, authority.ErrUnauthorized)

	out := h.mustRun(t, "owner", "transfer", "new-owner", "--as", "owner")
	assert.Contains(t, out, "owner -> new-owner")
	assert.Equal(t, "new-owner\n", h.mustRun(t, "owner"))

	_, err = h.run("reporter", "add", "r1", "reporter", "--as", "owner")
	assert.ErrorIs(t, err, authority.ErrUnauthorized, "old owner keeps no privilege")
}

func TestCLI_OwnerBeforeInit(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("owner")
	assert.ErrorIs(t, err, authority.ErrNotInitialized)

	h.mustRun(t, "init", "owner")
	_, err = h.run("init", "other")
	assert.ErrorIs(t, err, authority.ErrAlreadyInitialized)
}

func TestCLI_CheckOrder(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "owner")
	h.mustRun(t, "reporter", "add", "r1", "reporter", "--as", "owner")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"role checked before caller", []string{"reporter", "add", "x1", "bogus", "--as", "outsider"}, authority.ErrInvalidRole},
		{"outsider cannot add reporters", []string{"reporter", "add", "x1", "reporter", "--as", "outsider"}, authority.ErrUnauthorized},
		{"plain reporter cannot add reporters", []string{"reporter", "add", "x1", "reporter", "--as", "r1"}, authority.ErrUnauthorized},
		{"duplicate reporter", []string{"reporter", "add", "r1", "authority", "--as", "owner"}, authority.ErrReporterExists},
		{"update of absent reporter", []string{"reporter", "set", "x1", "authority", "--as", "owner"}, authority.ErrReporterNotFound},
		{"caller checked before risk and category", []string{"address", "flag", "a1", "Bogus", "11", "--as", "outsider"}, authority.ErrUnauthorized},
		{"owner is not a reporter", []string{"address", "flag", "a1", "Scam", "5", "--as", "owner"}, authority.ErrUnauthorized},
		{"risk checked before category", []string{"address", "flag", "a1", "Bogus", "11", "--as", "r1"}, registry.ErrInvalidRisk},
		{"negative risk", []string{"address", "flag", "--as", "r1", "--", "a1", "Scam", "-1"}, registry.ErrInvalidRisk},
		{"unknown category", []string{"address", "flag", "a1", "Bogus", "5", "--as", "r1"}, registry.ErrInvalidCategory},
		{"update of unflagged address", []string{"address", "update", "a1", "Scam", "5", "--as", "r1"}, registry.ErrAddressNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(tt.args...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Reporters)
	assert.Equal(t, int64(0), st.FlaggedAddresses)
}

func TestCLI_NumericArguments(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "owner")
	h.mustRun(t, "reporter", "add", "r1", "1", "--as", "owner")
	h.mustRun(t, "address", "flag", "a1", "10", "4", "--as", "r1")

	assert.Contains(t, h.mustRun(t, "address", "get", "a1"), "Mixer, risk 4")

	_, err := h.run("address", "flag", "a2", "Mixer", "four", "--as", "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an integer")
}

func TestCLI_RequiresCaller(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "owner")

	_, err := h.run("reporter", "add", "r1", "reporter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--as")

	t.Setenv("RISKCTL_AS", "owner")
	h.mustRun(t, "reporter", "add", "r1", "reporter")
}

func TestCLI_InvalidAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("init", "Not Valid")
	assert.ErrorIs(t, err, account.ErrInvalidID)

	_, err = h.run("address", "get", "0x123")
	assert.ErrorIs(t, err, account.ErrInvalidID)
}

func TestCLI_ReporterLookups(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "owner")

	_, err := h.run("reporter", "get", "nobody")
	assert.ErrorIs(t, err, authority.ErrReporterNotFound)
	assert.Contains(t, h.mustRun(t, "reporter", "status", "nobody"), "is not a reporter")

	h.mustRun(t, "reporter", "add", "r1", "reporter", "--as", "owner")
	assert.Contains(t, h.mustRun(t, "reporter", "status", "r1"), "is a reporter")
}

func TestCLI_JSONOutput(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init", "owner")
	h.mustRun(t, "reporter", "add", "r1", "reporter", "--as", "owner")
	h.mustRun(t, "address", "flag", "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01", "Sanctions", "9", "--as", "r1")

	out := h.mustRun(t, "address", "get", "0xabcdef0123456789abcdef0123456789abcdef01", "--json")
	var got struct {
		Address  string `json:"address"`
		Category string `json:"category"`
		Risk     int    `json:"risk"`
		Flagged  bool   `json:"flagged"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", got.Address)
	assert.Equal(t, "Sanctions", got.Category)
	assert.Equal(t, 9, got.Risk)
	assert.True(t, got.Flagged)

	out = h.mustRun(t, "address", "get", "clean.near", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "None", got.Category)
	assert.False(t, got.Flagged)
}

func TestCLI_Categories(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "categories")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(registry.Categories()))
	assert.Contains(t, out, "10  Mixer")

	out = h.mustRun(t, "categories", "--json")
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 19)
	assert.Equal(t, "ChildAbuse", list[18]["name"])
}

func TestCLI_Keys(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "keys", "create", "alice", "--name", "ci", "--json")
	var created struct {
		APIKey string      `json:"apiKey"`
		Key    auth.APIKey `json:"key"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, strings.HasPrefix(created.APIKey, "sk_"))

	key, err := auth.NewManager(h.keys).ValidateKey(context.Background(), created.APIKey)
	require.NoError(t, err)
	assert.Equal(t, account.ID("alice"), key.Account)

	out = h.mustRun(t, "keys", "list", "alice")
	assert.Contains(t, out, created.Key.ID)
	assert.Contains(t, out, "ci")

	h.mustRun(t, "keys", "revoke", "alice", created.Key.ID)
	_, err = auth.NewManager(h.keys).ValidateKey(context.Background(), created.APIKey)
	assert.Error(t, err)

	assert.Contains(t, h.mustRun(t, "keys", "list", "bob"), "no API keys")
}

func TestCLI_Token(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "token", "alice", "--ttl", "5m")
	ts, err := auth.NewTokenService(testJWTSecret, time.Hour)
	require.NoError(t, err)
	id, err := ts.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, account.ID("alice"), id)

	h.cfg.JWTSecret = ""
	_, err = h.run("token", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
}

func TestCLI_MigrateNeedsDatabase(t *testing.T) {
	h := newHarness(t)
	t.Setenv("DATABASE_URL", "")

	_, err := h.run("migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestCLI_Version(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "version")

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "riskctl", info["name"])
	assert.Equal(t, Version, info["version"])
}
