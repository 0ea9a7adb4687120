package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskproxy/internal/authority"
)

func init() {
	reporterCmd.AddCommand(reporterAddCmd, reporterSetCmd, reporterGetCmd, reporterStatusCmd)
	rootCmd.AddCommand(reporterCmd)
}

var reporterCmd = &cobra.Command{
	Use:     "reporter",
	Aliases: []string{"reporters"},
	Short:   "Manage reporters and their roles",
}

var reporterAddCmd = &cobra.Command{
	Use:   "add <account> <reporter|authority>",
	Short: "Grant a role to a new reporter (owner or authority only)",
	Args:  cobra.ExactArgs(2),
	RunE:  runReporterAdd,
}

var reporterSetCmd = &cobra.Command{
	Use:   "set <account> <reporter|authority>",
	Short: "Change an existing reporter's role (owner or authority only)",
	Args:  cobra.ExactArgs(2),
	RunE:  runReporterSet,
}

var reporterGetCmd = &cobra.Command{
	Use:   "get <account>",
	Short: "Show a reporter's role",
	Args:  cobra.ExactArgs(1),
	RunE:  runReporterGet,
}

var reporterStatusCmd = &cobra.Command{
	Use:   "status <account>",
	Short: "Report whether an account is a reporter",
	Args:  cobra.ExactArgs(1),
	RunE:  runReporterStatus,
}

// roleArg parses a role name or number. Unknown input becomes the invalid
// zero role so the registry reports it in its own check order.
func roleArg(raw string) authority.Role {
	role, _ := authority.ParseRole(raw)
	return role
}

func runReporterAdd(cmd *cobra.Command, args []string) error {
	from, err := caller()
	if err != nil {
		return err
	}
	target, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	role := roleArg(args[1])

	return withSession(cmd, func(ctx context.Context, s *session) error {
		if err := s.service.CreateReporter(ctx, from, target, role); err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"account": target, "role": role},
			fmt.Sprintf("%s added as %s", target, role))
	})
}

func runReporterSet(cmd *cobra.Command, args []string) error {
	from, err := caller()
	if err != nil {
		return err
	}
	target, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	role := roleArg(args[1])

	return withSession(cmd, func(ctx context.Context, s *session) error {
		previous, err := s.service.UpdateReporter(ctx, from, target, role)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"account": target, "role": role, "previousRole": previous},
			fmt.Sprintf("%s: %s -> %s", target, previous, role))
	})
}

func runReporterGet(cmd *cobra.Command, args []string) error {
	target, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		role, err := s.service.GetRole(ctx, target)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"account": target, "role": role, "roleName": role.String()},
			role.String())
	})
}

func runReporterStatus(cmd *cobra.Command, args []string) error {
	target, err := parseAccount("account", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		ok, err := s.service.IsReporter(ctx, target)
		if err != nil {
			return err
		}
		text := fmt.Sprintf("%s is not a reporter", target)
		if ok {
			text = fmt.Sprintf("%s is a reporter", target)
		}
		return printResult(cmd, map[string]any{"account": target, "isReporter": ok}, text)
	})
}
