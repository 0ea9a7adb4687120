package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry counts",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		st, err := s.service.Stats(ctx)
		if err != nil {
			return err
		}

		var sb strings.Builder
		if st.Initialized {
			fmt.Fprintf(&sb, "owner:             %s\n", st.Owner)
		} else {
			sb.WriteString("owner:             (not initialized)\n")
		}
		fmt.Fprintf(&sb, "reporters:         %d\n", st.Reporters)
		fmt.Fprintf(&sb, "authorities:       %d\n", st.Authorities)
		fmt.Fprintf(&sb, "flagged addresses: %d", st.FlaggedAddresses)
		return printResult(cmd, st, sb.String())
	})
}
