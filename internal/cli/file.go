package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/service/transcription"
	"github.com/HienH/sale-smell/internal/validation"
)

func NewFileCmd(deps *Dependencies) *cobra.Command {
	var (
		asJSON   bool
		language string
	)

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Upload a recording and wait for its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading audio: %w", err)
			}
			audio := &validation.Audio{
				Name:        filepath.Base(path),
				ContentType: validation.MediaType(path, ""),
				Data:        data,
			}
			if err := deps.App.Validator.Validate(audio); err != nil {
				return fmt.Errorf("%s", transcription.UserMessage(err))
			}

			var opts transcription.Options
			if language != "" {
				f := provider.DefaultFeatures()
				f.LanguageCode = language
				opts.Features = &f
			}

			formatter := NewFormatter(cmd.OutOrStdout())
			progress := NewFormatter(cmd.ErrOrStderr())
			result, err := deps.App.Transcriptions.Transcribe(cmd.Context(), audio, opts, transcription.Callbacks{
				OnProgress: progress.Progress,
			})
			if err != nil {
				return fmt.Errorf("%s", transcription.UserMessage(err))
			}
			if asJSON {
				return formatter.JSON(result)
			}
			formatter.Result(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().StringVar(&language, "language", "", "Language code of the recording")

	return cmd
}
