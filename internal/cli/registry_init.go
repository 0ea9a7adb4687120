package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <owner>",
	Short: "Initialize an empty registry with its owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	owner, err := parseAccount("owner", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		if err := s.service.Initialize(ctx, owner); err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"owner": owner},
			fmt.Sprintf("Registry initialized. Owner: %s", owner))
	})
}
