package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskproxy/internal/registry"
)

func init() {
	addressCmd.AddCommand(addressFlagCmd, addressUpdateCmd, addressGetCmd)
	rootCmd.AddCommand(addressCmd, categoriesCmd)
}

var addressCmd = &cobra.Command{
	Use:     "address",
	Aliases: []string{"addr"},
	Short:   "Flag, update and look up addresses",
}

var addressFlagCmd = &cobra.Command{
	Use:   "flag <account> <category> <risk>",
	Short: "Flag a new address (reporters only)",
	Args:  cobra.ExactArgs(3),
	RunE:  runAddressWrite(false),
}

var addressUpdateCmd = &cobra.Command{
	Use:   "update <account> <category> <risk>",
	Short: "Replace a flagged address's record (reporters only)",
	Args:  cobra.ExactArgs(3),
	RunE:  runAddressWrite(true),
}

var addressGetCmd = &cobra.Command{
	Use:   "get <account>",
	Short: "Show an address's category and risk",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddressGet,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the address categories",
	Args:  cobra.NoArgs,
	RunE:  runCategories,
}

// categoryArg parses a category name or number. Unknown input becomes an
// out-of-range category so the registry reports it in its own check order.
func categoryArg(raw string) registry.Category {
	if c, err := registry.ParseCategory(raw); err == nil {
		return c
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(registry.Categories()) {
		return registry.Category(n)
	}
	return registry.Category(255)
}

func runAddressWrite(update bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		from, err := caller()
		if err != nil {
			return err
		}
		target, err := parseAccount("address", args[0])
		if err != nil {
			return err
		}
		category := categoryArg(args[1])
		risk, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("risk %q: must be an integer", args[2])
		}

		return withSession(cmd, func(ctx context.Context, s *session) error {
			verb := "flagged"
			if update {
				verb = "updated"
				err = s.service.UpdateAddress(ctx, from, target, category, risk)
			} else {
				err = s.service.CreateAddress(ctx, from, target, category, risk)
			}
			if err != nil {
				return err
			}
			return printResult(cmd,
				map[string]any{"address": target, "category": category, "risk": risk, "flagged": true},
				fmt.Sprintf("%s %s: %s, risk %d", target, verb, category, risk))
		})
	}
}

func runAddressGet(cmd *cobra.Command, args []string) error {
	target, err := parseAccount("address", args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		view, err := s.service.GetAddress(ctx, target)
		if err != nil {
			return err
		}
		text := fmt.Sprintf("%s: not flagged", target)
		if view.Flagged {
			text = fmt.Sprintf("%s: %s, risk %d", target, view.Category, view.Risk)
		}
		return printResult(cmd, map[string]any{
			"address":  target,
			"category": view.Category,
			"risk":     view.Risk,
			"flagged":  view.Flagged,
		}, text)
	})
}

func runCategories(cmd *cobra.Command, args []string) error {
	cats := registry.Categories()
	type entry struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	list := make([]entry, 0, len(cats))
	var sb strings.Builder
	for _, c := range cats {
		list = append(list, entry{ID: int(c), Name: c.String()})
		fmt.Fprintf(&sb, "%2d  %s\n", int(c), c)
	}
	return printResult(cmd, list, strings.TrimRight(sb.String(), "\n"))
}
