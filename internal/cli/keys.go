package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskproxy/internal/auth"
	"github.com/mbd888/riskproxy/internal/validation"
)

var (
	keyName  string
	tokenTTL time.Duration
)

func init() {
	keysCreateCmd.Flags().StringVar(&keyName, "name", "riskctl", "friendly name for the key")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")

	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)
	rootCmd.AddCommand(keysCmd, tokenCmd)
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys that act as an account",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <account>",
	Short: "Issue an API key for an account (the raw key is shown once)",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list <account>",
	Short: "List an account's API keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <account> <key-id>",
	Short: "Revoke one of an account's API keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runKeysRevoke,
}

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Sign a bearer token for an account (needs AUTH_JWT_SECRET)",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	id, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	name := validation.SanitizeString(keyName, validation.MaxNameLength)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		raw, key, err := auth.NewManager(s.keys, auth.WithLogger(s.logger)).GenerateKey(ctx, id, name)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"apiKey": raw, "key": key},
			fmt.Sprintf("API key for %s (id %s):\n%s\nStore it now; it cannot be shown again.", id, key.ID, raw))
	})
}

func runKeysList(cmd *cobra.Command, args []string) error {
	id, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		keys, err := auth.NewManager(s.keys).ListKeys(ctx, id)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return printResult(cmd, keys, fmt.Sprintf("%s has no API keys.", id))
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%-38s %-20s %-8s %s\n", "ID", "NAME", "REVOKED", "CREATED")
		for _, k := range keys {
			fmt.Fprintf(&sb, "%-38s %-20s %-8t %s\n", k.ID, truncate(k.Name, 20), k.Revoked, k.CreatedAt.Format(time.RFC3339))
		}
		return printResult(cmd, keys, strings.TrimRight(sb.String(), "\n"))
	})
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	id, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		if err := auth.NewManager(s.keys).RevokeKey(ctx, args[1], id); err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"revoked": args[1]}, fmt.Sprintf("Key %s revoked.", args[1]))
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	id, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		if s.cfg.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is not set")
		}
		ts, err := auth.NewTokenService(s.cfg.JWTSecret, time.Hour)
		if err != nil {
			return err
		}
		token, expires, err := ts.Issue(id, tokenTTL)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"token": token, "expiresAt": expires}, token)
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
