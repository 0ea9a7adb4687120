package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/auth"
	"github.com/mbd888/riskproxy/internal/config"
	"github.com/mbd888/riskproxy/internal/events"
	"github.com/mbd888/riskproxy/internal/logging"
	"github.com/mbd888/riskproxy/internal/proxy"
	"github.com/mbd888/riskproxy/internal/retry"
	"github.com/mbd888/riskproxy/internal/state"
)

// session is everything one command needs: the stores, the call surface and
// the configuration they were opened with.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   state.Store
	keys    auth.Store
	sink    events.Sink
	service *proxy.Service
}

// openSession is replaced in tests.
var openSession = defaultOpenSession

func defaultOpenSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	logger := logging.NewWithWriter(os.Stderr, logLevel, "text")

	var store state.Store
	var keys auth.Store
	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = state.NewPostgresStore(db)
		keys = auth.NewPostgresStore(db)
	} else {
		logger.Warn("no database configured, using an in-memory store; changes are discarded on exit")
		store = state.NewMemoryStore()
		keys = auth.NewMemoryStore()
	}

	sinks := events.Multi{events.NewLogSink(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sinks = append(sinks, ks)
	}

	return newSession(cfg, logger, store, keys, sinks), nil
}

func newSession(cfg *config.Config, logger *slog.Logger, store state.Store, keys auth.Store, sink events.Sink) *session {
	return &session{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		keys:    keys,
		sink:    sink,
		service: proxy.NewService(store, sink, logger),
	}
}

func (s *session) Close() error {
	return errors.Join(s.sink.Close(), s.store.Close())
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = retry.Do(ctx, 3, 250*time.Millisecond, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(ctx, s)
}

// caller resolves the account a mutating command acts as.
func caller() (account.ID, error) {
	raw := callerFlag
	if raw == "" {
		raw = os.Getenv("RISKCTL_AS")
	}
	if raw == "" {
		return "", errors.New("this command needs an acting account: pass --as or set RISKCTL_AS")
	}
	id, err := account.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("--as %q: %w", raw, err)
	}
	return id, nil
}

func parseAccount(what, raw string) (account.ID, error) {
	id, err := account.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", what, raw, err)
	}
	return id, nil
}

// printResult writes v as JSON under --json, otherwise text.
func printResult(cmd *cobra.Command, v any, text string) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
