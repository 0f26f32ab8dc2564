package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/normalize"
	"github.com/HienH/sale-smell/internal/service/transcription"
)

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the current state of a transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := deps.App.Transcriptions.CheckStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s", transcription.UserMessage(err))
			}

			formatter := NewFormatter(cmd.OutOrStdout())
			if asJSON {
				return formatter.JSON(result)
			}
			formatter.Status(result.ID, result.Status, normalize.Progress(result.Status))
			if result.Status == models.StatusCompleted {
				formatter.Result(result)
			}
			if result.Error != "" {
				formatter.Error(result.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow an existing transcription job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := NewFormatter(cmd.ErrOrStderr())
			result, err := deps.App.Transcriptions.PollTranscriptionStatus(cmd.Context(), args[0], transcription.Callbacks{
				OnProgress: progress.Progress,
			})
			if err != nil {
				return fmt.Errorf("%s", transcription.UserMessage(err))
			}

			formatter := NewFormatter(cmd.OutOrStdout())
			if asJSON {
				return formatter.JSON(result)
			}
			formatter.Result(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final result as JSON")

	return cmd
}
