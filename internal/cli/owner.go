package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	ownerCmd.AddCommand(ownerTransferCmd)
	rootCmd.AddCommand(ownerCmd)
}

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Show the registry owner",
	Args:  cobra.NoArgs,
	RunE:  runOwner,
}

var ownerTransferCmd = &cobra.Command{
	Use:   "transfer <new-owner>",
	Short: "Hand ownership to another account (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runOwnerTransfer,
}

func runOwner(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		owner, err := s.service.Owner(ctx)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"owner": owner}, owner.String())
	})
}

func runOwnerTransfer(cmd *cobra.Command, args []string) error {
	from, err := caller()
	if err != nil {
		return err
	}
	to, err := parseAccount("new owner", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		if err := s.service.ChangeOwner(ctx, from, to); err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"owner": to, "previousOwner": from},
			fmt.Sprintf("Ownership transferred: %s -> %s", from, to))
	})
}
