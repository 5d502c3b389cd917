package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MustafaMerchant21/Nova/internal/app"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, app.Options{Verbose: opts.Verbose})
	if err != nil {
		return nil, err
	}
	prompter := NewPrompter(nil, nil)
	container.Gate.Prompter = prompter

	root := &cobra.Command{
		Use:   "nova",
		Short: "Nova - security gate for shell commands",
		Long: "Nova validates operator- or AI-supplied shell commands, scripts and automations\n" +
			"against a blacklist and structural heuristics, and only runs what passes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Parsed early by main; declared here so cobra accepts it.
	root.PersistentFlags().BoolP("verbose", "v", opts.Verbose, "Enable debug logging")

	root.AddCommand(
		newValidateCommand(container),
		newExecCommand(container, prompter),
		newScriptCommand(container),
		newRunCommand(container),
		commands.NewBlacklistCommand(container),
		commands.NewConfigCommand(container),
		commands.NewHistoryCommand(container),
		commands.NewDoctorCommand(container),
		commands.NewVersionCommand(),
	)
	return root, nil
}
