// Package cli implements the transcribe command line tool.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/HienH/sale-smell/internal/app"
	"github.com/HienH/sale-smell/internal/config"
)

// Dependencies are shared by every command. App is created on first use so
// flags can adjust the configuration first.
type Dependencies struct {
	App    *app.Application
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "transcribe",
		Short:         "Transcribe and analyze sales calls",
		Long:          "A CLI that uploads a sales call recording, follows the transcription job and prints speakers, sentiment, summary and highlights.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if deps.App != nil {
				return nil
			}
			if !verbose {
				deps.Config.Observability.LogLevel = "warn"
			}
			deps.Config.Observability.LogFormat = "console"
			deps.Config.Observability.LogOutput = cmd.ErrOrStderr()

			application, err := app.New(cmd.Context(), deps.Config)
			if err != nil {
				return err
			}
			deps.App = application
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warn")

	rootCmd.AddCommand(NewFileCmd(deps))
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewEventsCmd(deps))

	return rootCmd
}
