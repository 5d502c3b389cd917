package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MustafaMerchant21/Nova/internal/app"
)

// NewBlacklistCommand creates the blacklist command with add/remove/list subcommands
func NewBlacklistCommand(container *app.Container) *cobra.Command {
	blacklistCmd := &cobra.Command{
		Use:     "blacklist",
		Aliases: []string{"guardrail"},
		Short:   "Manage custom blacklist patterns",
		Long: "Custom patterns are saved to the rules file and apply to every later validation.\n" +
			"Plain text matches as a substring, \"re:<expr>\" is a regex and \"=<text>\" an exact match.",
	}

	blacklistCmd.AddCommand(
		newBlacklistAddCommand(container),
		newBlacklistRemoveCommand(container),
		newBlacklistListCommand(container),
	)
	return blacklistCmd
}

func newBlacklistAddCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a custom pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Gate.AddBlacklistPattern(args[0]); err != nil {
				return fmt.Errorf("failed to add pattern: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q to %s\n", args[0], container.Rules.Path())
			return nil
		},
	}
}

func newBlacklistRemoveCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <pattern>",
		Short: "Remove a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := container.Gate.RemoveBlacklistPattern(args[0])
			if err != nil {
				return fmt.Errorf("failed to remove pattern: %w", err)
			}
			if !removed {
				return fmt.Errorf("pattern %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", args[0])
			return nil
		},
	}
}

func newBlacklistListCommand(container *app.Container) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List custom patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if all {
				fmt.Fprint(out, container.Gate.Summary())
				return nil
			}
			listCustomPatterns(out, container)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show the full validator summary")
	return cmd
}

func listCustomPatterns(out io.Writer, container *app.Container) {
	patterns := container.Validator.CustomPatterns()
	if len(patterns) == 0 {
		fmt.Fprintln(out, MsgNoCustomPatterns)
		return
	}
	fmt.Fprintf(out, "Rules file: %s\n", container.Rules.Path())
	for _, p := range patterns {
		fmt.Fprintf(out, "  %s\n", p)
	}
}
